package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/caption-voice/internal/audio"
	"github.com/dgnsrekt/caption-voice/internal/cache"
	"github.com/dgnsrekt/caption-voice/internal/caption"
	"github.com/dgnsrekt/caption-voice/internal/config"
	"github.com/dgnsrekt/caption-voice/internal/filter"
	"github.com/dgnsrekt/caption-voice/internal/pipeline"
	"github.com/dgnsrekt/caption-voice/internal/settings"
	"github.com/dgnsrekt/caption-voice/internal/status"
	"github.com/dgnsrekt/caption-voice/internal/tts"
	"github.com/dgnsrekt/caption-voice/internal/tts/engines"
	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

// backendSet is the synthesis backend fixed for one session plus whatever
// has to be closed with it.
type backendSet struct {
	kind    ttypes.BackendKind
	backend tts.Backend
	prober  tts.Prober
	cache   *cache.Store
}

func (b *backendSet) Close() error {
	if b.cache == nil {
		return nil
	}
	return b.cache.Close()
}

func newPiperEngine(cfg config.PiperConfig) *engines.PiperEngine {
	return engines.NewPiperEngine(engines.PiperConfig{
		Binary:   cfg.Binary,
		VoiceDir: cfg.VoiceDir,
		Timeout:  cfg.Timeout,
	})
}

func newRemoteClient(cfg config.RemoteConfig) (*engines.RemoteClient, error) {
	return engines.NewRemoteClient(engines.RemoteConfig{
		ServerURL:    cfg.URL,
		Timeout:      cfg.Timeout,
		ProbeTimeout: cfg.ProbeTimeout,
	})
}

// selectBackend runs the one-time capability probe.
func selectBackend(ctx context.Context, cfg config.Config) (tts.Selection, *engines.PiperEngine, error) {
	engine := newPiperEngine(cfg.Piper)
	sel, err := tts.Select(ctx, engine, tts.SelectorConfig{
		Preference:   cfg.Backend,
		ProbeTimeout: cfg.Piper.ProbeTimeout,
	})
	return sel, engine, err
}

// buildBackend selects and constructs the backend. newPlayer is only called
// for the local backend.
func buildBackend(ctx context.Context, cfg config.Config, newPlayer func() (engines.PCMPlayer, error)) (*backendSet, error) {
	sel, engine, err := selectBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if sel.Kind == ttypes.BackendLocal {
		player, err := newPlayer()
		if err != nil {
			return nil, err
		}
		lc, err := engines.NewLocalClient(engine, player, engines.LocalConfig{TargetLanguage: cfg.Piper.Language})
		if err != nil {
			return nil, err
		}
		return &backendSet{kind: ttypes.BackendLocal, backend: lc}, nil
	}

	rc, err := newRemoteClient(cfg.Remote)
	if err != nil {
		return nil, err
	}
	set := &backendSet{kind: ttypes.BackendRemote, prober: rc}

	var synth tts.Synthesizer = rc
	if cfg.Cache.Enabled {
		store, err := openCache(cfg.Cache.Config)
		if err != nil {
			// Speech still works without the cache.
			log.Warn("Audio cache unavailable", "err", err)
		} else {
			set.cache = store
			synth = engines.NewCachedSynthesizer(rc, store)
		}
	}
	set.backend = engines.NewRemoteBackend(synth)
	return set, nil
}

func openCache(cfg cache.Config) (*cache.Store, error) {
	if cfg.DiskPath == "" {
		dir, err := cacheDir()
		if err != nil {
			return nil, err
		}
		cfg.DiskPath = filepath.Join(dir, "audio")
	}
	return cache.NewStore(cfg)
}

func newAudioManager(cfg config.AudioConfig) (*audio.Manager, error) {
	sink, err := audio.NewOtoSink(audio.SinkConfig{
		SampleRate: cfg.SampleRate,
		BufferSize: cfg.Buffer,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open audio output: %w", err)
	}
	return audio.NewManager(sink), nil
}

func newSettingsStore() *settings.Store {
	return settings.NewStore(viper.GetViper())
}

func newCoordinator(cfg config.Config, b *backendSet, s ttypes.Settings) (*pipeline.Coordinator, error) {
	return pipeline.NewCoordinator(pipeline.Config{
		Backend: b.backend,
		Filter: filter.New(
			filter.WithMinInterval(cfg.Filter.MinInterval),
			filter.WithNoisePhrases(cfg.Filter.NoisePhrases),
		),
		Settings:     s,
		MaxTextRunes: cfg.Filter.MaxTextRunes,
	})
}

func newMonitor(cfg config.Config, b *backendSet, src status.SettingsSource, extra ...ttypes.StatusRenderer) *status.Monitor {
	renderers := []ttypes.StatusRenderer{status.NewLogRenderer(log.WithPrefix("status"))}
	if cfg.Status.Notify {
		renderers = append(renderers, status.NewNotifyRenderer())
	}
	renderers = append(renderers, extra...)

	return status.NewMonitor(status.Config{
		Backend:      b.kind,
		Prober:       b.prober,
		Settings:     src,
		Renderers:    renderers,
		Interval:     cfg.Status.Interval,
		ProbeTimeout: cfg.Remote.ProbeTimeout,
	})
}

func openCaptionSource(cfg config.CaptionConfig) (caption.Source, error) {
	if cfg.Source == "" {
		return nil, errors.New("no caption source: set caption.source in the config or pass --source")
	}
	if cfg.IsURL() {
		return caption.NewHTTPSource(cfg.Source, cfg.FetchTimeout), nil
	}
	src, err := caption.NewFileSource(cfg.Source)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// watchSettings pushes settings edited on disk into the dispatcher.
func watchSettings(ctx context.Context, store *settings.Store, coord *pipeline.Coordinator) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	err := store.Watch(ctx, func(s ttypes.Settings) {
		if err := coord.ApplySettings(ctx, s); err != nil {
			log.Debug("Settings not applied", "err", err)
		}
	})
	if err != nil {
		log.Warn("Settings changes on disk will not be picked up", "err", err)
	}
}
