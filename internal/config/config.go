// Package config holds the application configuration and loads it from
// viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/dgnsrekt/caption-voice/internal/cache"
	"github.com/dgnsrekt/caption-voice/internal/caption"
	"github.com/dgnsrekt/caption-voice/internal/filter"
	"github.com/dgnsrekt/caption-voice/internal/settings"
	"github.com/dgnsrekt/caption-voice/internal/status"
	"github.com/dgnsrekt/caption-voice/internal/tts"
	"github.com/dgnsrekt/caption-voice/internal/tts/engines"
	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

// Config is the complete application configuration.
type Config struct {
	// Backend is auto, remote or local.
	Backend ttypes.BackendKind `mapstructure:"backend" yaml:"backend"`

	Remote   RemoteConfig   `mapstructure:"remote" yaml:"remote"`
	Piper    PiperConfig    `mapstructure:"piper" yaml:"piper"`
	Caption  CaptionConfig  `mapstructure:"caption" yaml:"caption"`
	Filter   FilterConfig   `mapstructure:"filter" yaml:"filter"`
	Audio    AudioConfig    `mapstructure:"audio" yaml:"audio"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Status   StatusConfig   `mapstructure:"status" yaml:"status"`
	Bridge   BridgeConfig   `mapstructure:"bridge" yaml:"bridge"`
	Settings ttypes.Settings `mapstructure:"settings" yaml:"settings"`
}

// RemoteConfig configures the networked synthesis service.
type RemoteConfig struct {
	URL          string        `mapstructure:"url" yaml:"url"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
}

// PiperConfig configures the on-device engine.
type PiperConfig struct {
	Binary       string        `mapstructure:"binary" yaml:"binary"`
	VoiceDir     string        `mapstructure:"voice_dir" yaml:"voice_dir"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Language     string        `mapstructure:"language" yaml:"language"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
}

// CaptionConfig configures where captions are read from.
type CaptionConfig struct {
	// Source is a file path or an http(s) URL serving the player HTML.
	Source         string            `mapstructure:"source" yaml:"source"`
	PollInterval   time.Duration     `mapstructure:"poll_interval" yaml:"poll_interval"`
	DiscoveryRetry time.Duration     `mapstructure:"discovery_retry" yaml:"discovery_retry"`
	StartDelay     time.Duration     `mapstructure:"start_delay" yaml:"start_delay"`
	FetchTimeout   time.Duration     `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	Selectors      caption.Selectors `mapstructure:"selectors" yaml:"selectors"`
}

// FilterConfig configures the caption filter.
type FilterConfig struct {
	MinInterval  time.Duration `mapstructure:"min_interval" yaml:"min_interval"`
	NoisePhrases []string      `mapstructure:"noise_phrases" yaml:"noise_phrases"`
	MaxTextRunes int           `mapstructure:"max_text_runes" yaml:"max_text_runes"`
}

// AudioConfig configures the output device.
type AudioConfig struct {
	SampleRate int           `mapstructure:"sample_rate" yaml:"sample_rate"`
	Buffer     time.Duration `mapstructure:"buffer" yaml:"buffer"`
}

// CacheConfig wraps the audio cache settings with an on/off switch.
type CacheConfig struct {
	Enabled      bool `mapstructure:"enabled" yaml:"enabled"`
	cache.Config `mapstructure:",squash" yaml:",inline"`
}

// StatusConfig configures the status monitor.
type StatusConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Notify   bool          `mapstructure:"notify" yaml:"notify"`
}

// BridgeConfig configures the WebSocket bridge.
type BridgeConfig struct {
	Listen         string   `mapstructure:"listen" yaml:"listen"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	RateLimit      float64  `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst          int      `mapstructure:"burst" yaml:"burst"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Backend: ttypes.BackendAuto,
		Remote: RemoteConfig{
			URL:          engines.DefaultServerURL,
			Timeout:      engines.DefaultSpeakTimeout,
			ProbeTimeout: engines.DefaultProbeTimeout,
		},
		Piper: PiperConfig{
			Binary:       engines.DefaultPiperBinary,
			Timeout:      engines.DefaultRenderTimeout,
			Language:     engines.DefaultTargetLanguage,
			ProbeTimeout: tts.DefaultProbeTimeout,
		},
		Caption: CaptionConfig{
			PollInterval:   caption.DefaultPollInterval,
			DiscoveryRetry: caption.DefaultDiscoveryRetry,
			StartDelay:     caption.DefaultStartDelay,
			FetchTimeout:   5 * time.Second,
			Selectors:      caption.DefaultSelectors(),
		},
		Filter: FilterConfig{
			MinInterval:  filter.DefaultMinInterval,
			NoisePhrases: append([]string(nil), filter.DefaultNoisePhrases...),
			MaxTextRunes: 1000,
		},
		Audio: AudioConfig{
			SampleRate: 44100,
			Buffer:     100 * time.Millisecond,
		},
		Cache: CacheConfig{
			Enabled: true,
			Config:  cache.DefaultConfig(),
		},
		Status: StatusConfig{
			Interval: status.DefaultInterval,
			Notify:   true,
		},
		Bridge: BridgeConfig{
			Listen:    "127.0.0.1:7373",
			RateLimit: 10,
			Burst:     20,
		},
		Settings: ttypes.DefaultSettings(),
	}
}

// SetDefaults registers every default with v so that unset keys, env
// variables and flags all resolve.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("backend", string(d.Backend))

	v.SetDefault("remote.url", d.Remote.URL)
	v.SetDefault("remote.timeout", d.Remote.Timeout)
	v.SetDefault("remote.probe_timeout", d.Remote.ProbeTimeout)

	v.SetDefault("piper.binary", d.Piper.Binary)
	v.SetDefault("piper.voice_dir", d.Piper.VoiceDir)
	v.SetDefault("piper.timeout", d.Piper.Timeout)
	v.SetDefault("piper.language", d.Piper.Language)
	v.SetDefault("piper.probe_timeout", d.Piper.ProbeTimeout)

	v.SetDefault("caption.source", d.Caption.Source)
	v.SetDefault("caption.poll_interval", d.Caption.PollInterval)
	v.SetDefault("caption.discovery_retry", d.Caption.DiscoveryRetry)
	v.SetDefault("caption.start_delay", d.Caption.StartDelay)
	v.SetDefault("caption.fetch_timeout", d.Caption.FetchTimeout)
	v.SetDefault("caption.selectors.containers", d.Caption.Selectors.Containers)
	v.SetDefault("caption.selectors.text", d.Caption.Selectors.Text)

	v.SetDefault("filter.min_interval", d.Filter.MinInterval)
	v.SetDefault("filter.noise_phrases", d.Filter.NoisePhrases)
	v.SetDefault("filter.max_text_runes", d.Filter.MaxTextRunes)

	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("audio.buffer", d.Audio.Buffer)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.memory_capacity", d.Cache.MemoryCapacity)
	v.SetDefault("cache.disk_capacity", d.Cache.DiskCapacity)
	v.SetDefault("cache.disk_path", d.Cache.DiskPath)
	v.SetDefault("cache.compression_level", d.Cache.CompressionLevel)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.cleanup_interval", d.Cache.CleanupInterval)

	v.SetDefault("status.interval", d.Status.Interval)
	v.SetDefault("status.notify", d.Status.Notify)

	v.SetDefault("bridge.listen", d.Bridge.Listen)
	v.SetDefault("bridge.allowed_origins", d.Bridge.AllowedOrigins)
	v.SetDefault("bridge.rate_limit", d.Bridge.RateLimit)
	v.SetDefault("bridge.burst", d.Bridge.Burst)

	settings.SetDefaults(v)
}

// LoadFromViper builds, normalizes and validates the configuration.
func LoadFromViper(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unable to decode configuration: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
