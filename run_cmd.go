package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/caarlos0/env/v11"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/dgnsrekt/caption-voice/internal/caption"
	"github.com/dgnsrekt/caption-voice/internal/pipeline"
	"github.com/dgnsrekt/caption-voice/internal/status"
	"github.com/dgnsrekt/caption-voice/internal/tts/engines"
	"github.com/dgnsrekt/caption-voice/internal/ttypes"
	"github.com/dgnsrekt/caption-voice/ui"
)

var tui bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch captions and read them aloud",
	Long: paragraph(fmt.Sprintf(
		"\n%s the caption source and speak every new caption. Captions that arrive while one is being spoken are skipped.",
		keyword("Watch"),
	)),
	Example: paragraph("caption-voice run --source ~/captions.html\ncaption-voice run --source http://localhost:8080/player --tui"),
	Args:    cobra.NoArgs,
	RunE:    runPipeline,
}

func init() {
	runCmd.Flags().String("source", "", "caption source: player HTML file or http(s) URL")
	runCmd.Flags().BoolVarP(&tui, "tui", "t", false, "show the live terminal view")
	_ = viper.BindPFlag("caption.source", runCmd.Flags().Lookup("source"))
}

// acquireLock makes sure only one pipeline per user speaks at a time.
func acquireLock() (*flock.Flock, error) {
	dir, err := cacheDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec
		return nil, err
	}
	lock := flock.New(filepath.Join(dir, appName+".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("unable to lock %s: %w", lock.Path(), err)
	}
	if !ok {
		return nil, errors.New("another caption-voice pipeline is already running")
	}
	return lock, nil
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lock, err := acquireLock()
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager, err := newAudioManager(cfg.Audio)
	if err != nil {
		return err
	}
	defer manager.Stop()

	backends, err := buildBackend(ctx, cfg, func() (engines.PCMPlayer, error) { return manager, nil })
	if err != nil {
		return err
	}
	defer func() { _ = backends.Close() }()

	store := newSettingsStore()
	coord, err := newCoordinator(cfg, backends, store.Load())
	if err != nil {
		return err
	}

	source, err := openCaptionSource(cfg.Caption)
	if err != nil {
		return err
	}
	defer func() { _ = source.Close() }()

	observer := caption.NewObserver(source, caption.Config{
		PollInterval:   cfg.Caption.PollInterval,
		DiscoveryRetry: cfg.Caption.DiscoveryRetry,
		StartDelay:     cfg.Caption.StartDelay,
		Selectors:      cfg.Caption.Selectors,
	})
	session := pipeline.NewSession(coord, manager)

	useTUI := tui && term.IsTerminal(int(os.Stdout.Fd())) //nolint:gosec
	if tui && !useTUI {
		log.Warn("Not a terminal, running without the live view")
	}

	var extra []ttypes.StatusRenderer
	if !useTUI {
		extra = append(extra, status.NewStyleRenderer(cmd.OutOrStdout()))
	}
	monitor := newMonitor(cfg, backends, coord, extra...)

	watchSettings(ctx, store, coord)

	log.Info("Pipeline starting",
		"backend", backends.kind,
		"source", cfg.Caption.Source,
		"voice", coord.Settings().VoiceID)

	snapshots := make(chan ttypes.CaptionSnapshot)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coord.Run(gctx) })
	g.Go(func() error { return monitor.Run(gctx, coord.RefreshRequests()) })
	g.Go(func() error {
		defer close(snapshots)
		return observer.Run(gctx, snapshots)
	})
	g.Go(func() error { return session.Run(gctx, snapshots) })

	if useTUI {
		g.Go(func() error {
			defer stop()
			return runTUI(gctx, coord, monitor, store.Save)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runTUI(ctx context.Context, coord *pipeline.Coordinator, monitor *status.Monitor, save func(ttypes.Settings) error) error {
	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil { //nolint:gosec
		cfg.Width = w
	}

	if viper.ConfigFileUsed() == "" {
		save = nil
	}
	p := ui.NewProgram(ctx, cfg, ui.Deps{
		Dispatcher:   coord,
		Status:       monitor,
		SaveSettings: save,
	})
	if _, err := p.Run(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	// Quitting the view ends the pipeline.
	return context.Canceled
}
