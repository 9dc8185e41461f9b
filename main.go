// Package main provides the entry point for the caption-voice CLI application.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/caption-voice/internal/config"
)

const appName = "caption-voice"

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	debug      bool
	logStderr  bool

	rootCmd = &cobra.Command{
		Use:   appName,
		Short: "Read on-screen captions aloud",
		Long: paragraph(
			fmt.Sprintf("\nRead on-screen captions %s, one utterance at a time, through a speech service or an on-device voice.", keyword("aloud")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.NoArgs,
		PersistentPreRun: func(*cobra.Command, []string) {
			if debug {
				log.SetLevel(log.DebugLevel)
			}
			if logStderr {
				log.SetOutput(os.Stderr)
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// loadConfig builds the effective configuration from the file, the
// environment and bound flags.
func loadConfig() (config.Config, error) {
	return config.LoadFromViper(viper.GetViper())
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	cobra.OnInitialize(tryLoadConfigFromDefaultPlaces)
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s.yml in the user config dir)", appName))
	flags.BoolVar(&debug, "debug", false, "log at debug level")
	flags.BoolVar(&logStderr, "log-stderr", false, "log to stderr instead of the log file")
	flags.String("backend", "", "synthesis backend: auto, remote or local")
	flags.String("server", "", "remote synthesis service URL")
	flags.String("voice-dir", "", "directory with on-device voice models")

	// Config bindings
	_ = viper.BindPFlag("backend", flags.Lookup("backend"))
	_ = viper.BindPFlag("remote.url", flags.Lookup("server"))
	_ = viper.BindPFlag("piper.voice_dir", flags.Lookup("voice-dir"))

	config.SetDefaults(viper.GetViper())

	rootCmd.AddCommand(runCmd, serveCmd, statusCmd, voicesCmd, settingsCmd, configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	viper.SetEnvPrefix("caption_voice")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.SetConfigType("yaml")

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := ensureConfigFile(); err != nil {
			log.Error("Could not create configuration", "error", err)
		}
		if err := viper.ReadInConfig(); err != nil {
			log.Warn("Could not parse configuration file", "err", err)
		}
		return
	}

	scope := gap.NewScope(gap.User, appName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, appName)}, dirs...)
	}

	if c := os.Getenv("CAPTION_VOICE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}
	viper.SetConfigName(appName)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		configFile = used
		return
	}

	// First run: write the commented defaults so settings can be persisted.
	configFile = filepath.Join(dirs[0], appName+".yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
		return
	}
	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		log.Warn("Could not parse configuration file", "err", err)
	}
}
