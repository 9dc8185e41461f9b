package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateCaption(); err != nil {
		return err
	}
	if err := c.validateFilter(); err != nil {
		return err
	}
	if err := c.validateAudio(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateStatus(); err != nil {
		return err
	}
	return c.validateBridge()
}

func (c *Config) validateBackend() error {
	switch c.Backend {
	case ttypes.BackendAuto, ttypes.BackendRemote, ttypes.BackendLocal:
	default:
		return fmt.Errorf("backend must be auto, remote or local, got %q", c.Backend)
	}

	u, err := url.Parse(c.Remote.URL)
	if err != nil {
		return fmt.Errorf("remote.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("remote.url must be an http(s) URL, got %q", c.Remote.URL)
	}
	if c.Remote.Timeout < 0 || c.Remote.ProbeTimeout < 0 {
		return errors.New("remote timeouts must not be negative")
	}
	if c.Piper.Timeout < 0 || c.Piper.ProbeTimeout < 0 {
		return errors.New("piper timeouts must not be negative")
	}
	return nil
}

func (c *Config) validateCaption() error {
	if c.Caption.PollInterval <= 0 {
		return errors.New("caption.poll_interval must be positive")
	}
	if c.Caption.DiscoveryRetry <= 0 {
		return errors.New("caption.discovery_retry must be positive")
	}
	if len(c.Caption.Selectors.Containers) == 0 || len(c.Caption.Selectors.Text) == 0 {
		return errors.New("caption.selectors needs at least one container and one text selector")
	}
	return nil
}

func (c *Config) validateFilter() error {
	if c.Filter.MinInterval < 0 {
		return errors.New("filter.min_interval must not be negative")
	}
	if c.Filter.MaxTextRunes <= 0 {
		return errors.New("filter.max_text_runes must be positive")
	}
	return nil
}

func (c *Config) validateAudio() error {
	if c.Audio.SampleRate != 44100 && c.Audio.SampleRate != 48000 {
		return fmt.Errorf("audio.sample_rate must be 44100 or 48000, got %d", c.Audio.SampleRate)
	}
	if c.Audio.Buffer < 0 {
		return errors.New("audio.buffer must not be negative")
	}
	return nil
}

func (c *Config) validateCache() error {
	if !c.Cache.Enabled {
		return nil
	}
	if c.Cache.MemoryCapacity < 0 || c.Cache.DiskCapacity <= 0 {
		return errors.New("cache capacities must be positive")
	}
	if c.Cache.CompressionLevel < 0 || c.Cache.CompressionLevel > 22 {
		return fmt.Errorf("cache.compression_level must be between 0 and 22, got %d", c.Cache.CompressionLevel)
	}
	return nil
}

func (c *Config) validateStatus() error {
	if c.Status.Interval <= 0 {
		return errors.New("status.interval must be positive")
	}
	return nil
}

func (c *Config) validateBridge() error {
	if c.Bridge.Listen == "" {
		return errors.New("bridge.listen must be set")
	}
	if c.Bridge.RateLimit <= 0 || c.Bridge.Burst < 1 {
		return errors.New("bridge.rate_limit and bridge.burst must be positive")
	}
	return nil
}
