package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/caption-voice/internal/status"
	"github.com/dgnsrekt/caption-voice/internal/tts"
	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

var errUnavailable = errors.New("speech service unavailable")

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether captions can be spoken",
	Long: paragraph(fmt.Sprintf(
		"\n%s the synthesis backend once and report active, disabled or server error. Exits non-zero when the backend cannot be reached.",
		keyword("Probe"),
	)),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		sel, engine, err := selectBackend(ctx, cfg)
		if err != nil {
			res := tts.ValidateLocal(ctx, engine, tts.SelectorConfig{ProbeTimeout: cfg.Piper.ProbeTimeout})
			printValidation(cmd, res)
			return err
		}

		set := &backendSet{kind: sel.Kind}
		var remote *validatedRemote
		if sel.Kind == ttypes.BackendRemote {
			rc, err := newRemoteClient(cfg.Remote)
			if err != nil {
				return err
			}
			set.prober = rc
			remote = &validatedRemote{prober: rc, url: rc.URL()}
		}

		store := newSettingsStore()
		monitor := status.NewMonitor(status.Config{
			Backend:      set.kind,
			Prober:       set.prober,
			Settings:     store,
			Renderers:    []ttypes.StatusRenderer{status.NewStyleRenderer(out)},
			ProbeTimeout: cfg.Remote.ProbeTimeout,
		})
		st := monitor.Refresh(ctx)

		fmt.Fprintln(out, paragraph(status.Describe(st)))
		fmt.Fprintln(out, faint(fmt.Sprintf("  backend %s (%s)", sel.Kind, sel.Reason)))
		if sel.Kind == ttypes.BackendLocal {
			fmt.Fprintln(out, faint(fmt.Sprintf("  %d on-device voices", len(sel.Voices))))
		}

		if st == ttypes.StatusServerError && remote != nil {
			printValidation(cmd, tts.ValidateRemote(ctx, remote.prober, remote.url))
			return errUnavailable
		}
		return nil
	},
}

type validatedRemote struct {
	prober tts.Prober
	url    string
}

func printValidation(cmd *cobra.Command, res *tts.ValidationResult) {
	out := cmd.OutOrStdout()
	keys := make([]string, 0, len(res.Details))
	for k := range res.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintln(out, faint(fmt.Sprintf("  %s: %s", k, res.Details[k])))
	}
	if res.Error != nil {
		fmt.Fprintln(out, faint("  error: "+res.Error.Error()))
	}
	if res.Guidance != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, paragraph(res.Guidance))
	}
}
