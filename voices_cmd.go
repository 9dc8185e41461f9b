package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/caption-voice/internal/config"
)

const voicesTimeout = 5 * time.Second

var (
	voicesRemoteOnly bool
	voicesLocalOnly  bool
)

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List available voices",
	Long: paragraph(fmt.Sprintf(
		"\n%s the voices offered by the speech service and the on-device engine. The id in the first column is what settings.voice_id expects.",
		keyword("List"),
	)),
	Example: paragraph("caption-voice voices\ncaption-voice voices --local"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		ctx, cancel := context.WithTimeout(cmd.Context(), voicesTimeout)
		defer cancel()

		if !voicesLocalOnly {
			listRemoteVoices(ctx, out, cfg.Remote)
		}
		if !voicesRemoteOnly {
			listLocalVoices(ctx, out, cfg.Piper)
		}
		return nil
	},
}

func init() {
	voicesCmd.Flags().BoolVar(&voicesRemoteOnly, "remote", false, "only list the speech service's voices")
	voicesCmd.Flags().BoolVar(&voicesLocalOnly, "local", false, "only list on-device voices")
	voicesCmd.MarkFlagsMutuallyExclusive("remote", "local")
}

func listRemoteVoices(ctx context.Context, out io.Writer, cfg config.RemoteConfig) {
	fmt.Fprintln(out, heading("Speech service")+" "+faint(cfg.URL))

	rc, err := newRemoteClient(cfg)
	if err != nil {
		fmt.Fprintln(out, faint("  "+err.Error()))
		return
	}
	voices, err := rc.ListVoices(ctx)
	if err != nil {
		fmt.Fprintln(out, faint("  unavailable: "+err.Error()))
		return
	}
	if len(voices) == 0 {
		fmt.Fprintln(out, faint("  no voices"))
		return
	}
	for _, v := range voices {
		fmt.Fprintf(out, "  %-28s %-8s %s\n", keyword(v.ShortName), v.Language, faint(v.Gender))
	}
}

func listLocalVoices(ctx context.Context, out io.Writer, cfg config.PiperConfig) {
	engine := newPiperEngine(cfg)
	fmt.Fprintln(out, heading("On-device")+" "+faint(engine.Name()))

	if !engine.Available() {
		fmt.Fprintln(out, faint("  not installed"))
		return
	}
	if err := engine.Start(ctx); err != nil {
		fmt.Fprintln(out, faint("  unavailable: "+err.Error()))
		return
	}
	voices := engine.Voices()
	if len(voices) == 0 {
		fmt.Fprintln(out, faint("  no voices"))
		return
	}
	for _, v := range voices {
		fmt.Fprintf(out, "  %-28s %-8s %s\n", keyword(v.Name), v.Language, faint(v.Path))
	}
}
