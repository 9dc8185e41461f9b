package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/caption-voice/internal/settings"
	"github.com/dgnsrekt/caption-voice/internal/tts"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show the persisted speech settings",
	Long: paragraph(fmt.Sprintf(
		"\n%s the speech settings. A running pipeline picks up changes as soon as the config file is written.",
		keyword("Show or change"),
	)),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s := newSettingsStore().Load()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %t\n", keyword(settings.KeyEnabled), s.Enabled)
		fmt.Fprintf(out, "%s %s\n", keyword(settings.KeyVoice), s.VoiceID)
		fmt.Fprintf(out, "%s %d %s\n", keyword(settings.KeySpeed), s.SpeedPercent, faint("("+tts.SpeedDisplay(s.SpeedPercent)+")"))
		return nil
	},
}

var settingsGetCmd = &cobra.Command{
	Use:       "get KEY",
	Short:     "Print one setting",
	Args:      cobra.ExactArgs(1),
	ValidArgs: settings.Keys(),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := newSettingsStore().Get(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:       "set KEY VALUE",
	Short:     "Change and save one setting",
	Example:   paragraph("caption-voice settings set enabled false\ncaption-voice settings set voice uk-UA-OstapNeural\ncaption-voice settings set speed 125%"),
	Args:      cobra.ExactArgs(2),
	ValidArgs: settings.Keys(),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSettingsStore().Set(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved: enabled=%t voice=%s speed=%d%%\n", s.Enabled, s.VoiceID, s.SpeedPercent)
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd)
}
