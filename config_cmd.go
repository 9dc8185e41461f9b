package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const defaultConfig = `# synthesis backend: auto, remote or local.
# auto uses an on-device voice when one is installed, otherwise the service.
backend: "auto"

# networked synthesis service
remote:
  url: "http://localhost:3000"
  timeout: "30s"
  probe_timeout: "2s"

# on-device engine
piper:
  binary: "piper"
  # directory with <voice>.onnx and <voice>.onnx.json files
  # voice_dir: "~/.local/share/piper"
  timeout: "10s"
  # caption language voices are matched against
  language: "uk"
  probe_timeout: "3s"

# where captions are read from: a player HTML file or an http(s) URL
caption:
  # source: "~/captions.html"
  poll_interval: "500ms"
  discovery_retry: "2s"
  start_delay: "3s"
  fetch_timeout: "5s"

filter:
  # captions closer together than this are not spoken
  min_interval: "200ms"
  # longer captions are truncated before they are sent
  max_text_runes: 1000

audio:
  # 44100 or 48000
  sample_rate: 44100
  buffer: "100ms"

# cache of synthesized speech (remote backend only)
cache:
  enabled: true
  memory_capacity: 33554432
  disk_capacity: 268435456
  # disk_path: "~/.cache/caption-voice/audio"
  compression_level: 3
  ttl: "168h"
  cleanup_interval: "1h"

status:
  interval: "30s"
  # desktop notification when the service status changes
  notify: true

# WebSocket bridge used by "caption-voice serve"
bridge:
  listen: "127.0.0.1:7373"
  # allowed_origins: ["chrome-extension://*"]
  rate_limit: 10
  burst: 20

# user settings; also changed by "caption-voice settings set"
settings:
  enabled: true
  voice_id: "uk-UA-PolinaNeural"
  # 50 to 200
  speed_percent: 100
`

var printConfig bool

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the caption-voice config file",
	Long:    paragraph(fmt.Sprintf("\n%s the caption-voice config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("caption-voice config\ncaption-voice config --print\ncaption-voice config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if printConfig {
			return writeEffectiveConfig(cmd)
		}

		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("caption-voice", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&printConfig, "print", false, "print the effective configuration and exit")
}

// writeEffectiveConfig prints the merged file, environment and flag values.
func writeEffectiveConfig(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("unable to encode configuration: %w", err)
	}
	return enc.Close()
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
