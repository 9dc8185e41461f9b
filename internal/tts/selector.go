package tts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

const (
	// DefaultVoicePollInterval is how often the voice list is re-read while
	// an engine is still populating it.
	DefaultVoicePollInterval = 100 * time.Millisecond

	// DefaultProbeTimeout bounds the one-time capability probe.
	DefaultProbeTimeout = 3 * time.Second
)

// Selection is the backend choice fixed for a session.
type Selection struct {
	Kind   ttypes.BackendKind
	Voices []ttypes.Voice
	Reason string
}

// SelectorConfig tunes the capability probe.
type SelectorConfig struct {
	// Preference is auto, remote or local.
	Preference ttypes.BackendKind

	// PollInterval is the voice-list polling interval (default 100ms).
	PollInterval time.Duration

	// ProbeTimeout bounds waiting for the voice list (default 3s).
	ProbeTimeout time.Duration
}

// Select probes the environment once and fixes the backend for the session.
// A nil engine is treated as "no on-device engine".
func Select(ctx context.Context, engine ttypes.VoiceEngine, cfg SelectorConfig) (Selection, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultVoicePollInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	logger := log.WithPrefix("selector")

	switch cfg.Preference {
	case ttypes.BackendRemote:
		logger.Info("Backend selected", "backend", ttypes.BackendRemote, "reason", "configured")
		return Selection{Kind: ttypes.BackendRemote, Reason: "configured"}, nil
	case ttypes.BackendLocal, ttypes.BackendAuto, "":
	default:
		return Selection{}, fmt.Errorf("unknown backend %q", cfg.Preference)
	}

	voices, err := probeLocal(ctx, engine, cfg)
	if err == nil {
		logger.Info("Backend selected", "backend", ttypes.BackendLocal, "engine", engine.Name(), "voices", len(voices))
		return Selection{Kind: ttypes.BackendLocal, Voices: voices, Reason: "on-device engine detected"}, nil
	}

	if cfg.Preference == ttypes.BackendLocal {
		return Selection{}, fmt.Errorf("%w: %v", ErrNoLocalEngine, err)
	}

	logger.Info("Backend selected", "backend", ttypes.BackendRemote, "reason", err)
	return Selection{Kind: ttypes.BackendRemote, Reason: err.Error()}, nil
}

func probeLocal(ctx context.Context, engine ttypes.VoiceEngine, cfg SelectorConfig) ([]ttypes.Voice, error) {
	if engine == nil {
		return nil, errors.New("no on-device engine configured")
	}
	if !engine.Available() {
		return nil, fmt.Errorf("%s is not available", engine.Name())
	}
	if err := engine.Start(ctx); err != nil {
		return nil, fmt.Errorf("start %s: %w", engine.Name(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout)
	defer cancel()

	return WaitForVoices(ctx, engine, cfg.PollInterval)
}

// WaitForVoices polls the engine until its voice list is non-empty.
// It is meant to run once, during initialization.
func WaitForVoices(ctx context.Context, engine ttypes.VoiceEngine, interval time.Duration) ([]ttypes.Voice, error) {
	if voices := engine.Voices(); len(voices) > 0 {
		return voices, nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s reported no voices: %w", engine.Name(), ctx.Err())
		case <-ticker.C:
			if voices := engine.Voices(); len(voices) > 0 {
				return voices, nil
			}
		}
	}
}
