package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/caption-voice/internal/audio"
	"github.com/dgnsrekt/caption-voice/internal/bridge"
	"github.com/dgnsrekt/caption-voice/internal/tts/engines"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dispatcher over a WebSocket",
	Long: paragraph(fmt.Sprintf(
		"\n%s the speech dispatcher on a local WebSocket so a browser extension or another process can send captions to it. Audio from the speech service is returned to the client; the on-device voice plays here.",
		keyword("Serve"),
	)),
	Example: paragraph("caption-voice serve\ncaption-voice serve --listen 127.0.0.1:9000"),
	Args:    cobra.NoArgs,
	RunE:    servePipeline,
}

func init() {
	serveCmd.Flags().String("listen", "", "address to listen on")
	_ = viper.BindPFlag("bridge.listen", serveCmd.Flags().Lookup("listen"))
}

func servePipeline(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var manager *audio.Manager
	backends, err := buildBackend(ctx, cfg, func() (engines.PCMPlayer, error) {
		m, err := newAudioManager(cfg.Audio)
		manager = m
		return m, err
	})
	if err != nil {
		return err
	}
	defer func() { _ = backends.Close() }()
	if manager != nil {
		defer manager.Stop()
	}

	store := newSettingsStore()
	coord, err := newCoordinator(cfg, backends, store.Load())
	if err != nil {
		return err
	}
	monitor := newMonitor(cfg, backends, coord)

	save := store.Save
	if viper.ConfigFileUsed() == "" {
		save = nil
	}
	srv := bridge.New(coord, bridge.Config{
		Listen:         cfg.Bridge.Listen,
		AllowedOrigins: cfg.Bridge.AllowedOrigins,
		RateLimit:      cfg.Bridge.RateLimit,
		Burst:          cfg.Bridge.Burst,
		Status:         monitor.Current,
		SaveSettings:   save,
	})

	watchSettings(ctx, store, coord)
	log.Info("Dispatcher starting", "backend", backends.kind, "listen", cfg.Bridge.Listen)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coord.Run(gctx) })
	g.Go(func() error { return monitor.Run(gctx, coord.RefreshRequests()) })
	g.Go(func() error { return srv.ListenAndServe(gctx) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
