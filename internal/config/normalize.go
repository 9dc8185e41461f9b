package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/go-homedir"

	"github.com/dgnsrekt/caption-voice/internal/tts"
	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

func (c *Config) normalize() error {
	c.Backend = ttypes.BackendKind(strings.ToLower(strings.TrimSpace(string(c.Backend))))
	if c.Backend == "" {
		c.Backend = ttypes.BackendAuto
	}
	c.Remote.URL = strings.TrimRight(strings.TrimSpace(c.Remote.URL), "/")
	c.Settings = tts.NormalizeSettings(c.Settings)
	return c.normalizePaths()
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Piper.VoiceDir, err = homedir.Expand(c.Piper.VoiceDir); err != nil {
		return fmt.Errorf("piper.voice_dir: %w", err)
	}
	if c.Cache.DiskPath, err = homedir.Expand(c.Cache.DiskPath); err != nil {
		return fmt.Errorf("cache.disk_path: %w", err)
	}
	if !c.Caption.IsURL() {
		if c.Caption.Source, err = homedir.Expand(c.Caption.Source); err != nil {
			return fmt.Errorf("caption.source: %w", err)
		}
	}
	return nil
}

// IsURL reports whether the caption source is fetched over HTTP.
func (c CaptionConfig) IsURL() bool {
	s := strings.ToLower(c.Source)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
