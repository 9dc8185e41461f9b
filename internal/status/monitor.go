// Package status computes the tri-state service indicator and pushes it to
// renderers.
package status

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/caption-voice/internal/tts"
	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

// Monitor defaults.
const (
	DefaultInterval     = 30 * time.Second
	DefaultProbeTimeout = 2 * time.Second
)

// Reasons passed to renderers. They are identifiers, not user-facing text.
const (
	ReasonUnreachable = "backend-unreachable"
	ReasonDisabled    = "speech-disabled"
	ReasonReady       = "ready"
	ReasonLocal       = "local-engine"
)

// SettingsSource supplies the current settings; *pipeline.Coordinator
// satisfies it.
type SettingsSource interface {
	Settings() ttypes.Settings
}

// Config holds monitor configuration.
type Config struct {
	// Backend is the session's fixed backend. Only remote is probed.
	Backend ttypes.BackendKind

	// Prober checks the remote service; ignored for the local backend.
	Prober tts.Prober

	// Settings reports whether speech is enabled.
	Settings SettingsSource

	// Renderers receive every recomputed status.
	Renderers []ttypes.StatusRenderer

	// Interval between periodic refreshes (default 30s).
	Interval time.Duration

	// ProbeTimeout bounds one probe (default 2s).
	ProbeTimeout time.Duration
}

// Monitor recomputes the service status on demand and on a timer.
type Monitor struct {
	cfg    Config
	logger *log.Logger

	mu     sync.Mutex
	last   ttypes.ServiceStatus
	reason string
	seen   bool
}

// NewMonitor creates a status monitor.
func NewMonitor(cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	return &Monitor{cfg: cfg, logger: log.WithPrefix("status")}
}

// Evaluate applies the status precedence: an unreachable backend wins over
// disabled, which wins over active.
func Evaluate(probeErr error, enabled bool) (ttypes.ServiceStatus, string) {
	switch {
	case probeErr != nil:
		return ttypes.StatusServerError, ReasonUnreachable
	case !enabled:
		return ttypes.StatusDisabled, ReasonDisabled
	default:
		return ttypes.StatusActive, ReasonReady
	}
}

// Refresh probes the backend if needed, recomputes the status and pushes it
// to every renderer.
func (m *Monitor) Refresh(ctx context.Context) ttypes.ServiceStatus {
	var probeErr error
	if m.cfg.Backend != ttypes.BackendLocal && m.cfg.Prober != nil {
		pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
		probeErr = m.cfg.Prober.Probe(pctx)
		cancel()
		if probeErr != nil {
			m.logger.Debug("Probe failed", "err", probeErr)
		}
	}

	enabled := true
	if m.cfg.Settings != nil {
		enabled = m.cfg.Settings.Settings().Enabled
	}

	status, reason := Evaluate(probeErr, enabled)
	if status == ttypes.StatusActive && m.cfg.Backend == ttypes.BackendLocal {
		reason = ReasonLocal
	}

	m.mu.Lock()
	changed := !m.seen || status != m.last
	m.last, m.reason, m.seen = status, reason, true
	m.mu.Unlock()

	if changed {
		m.logger.Debug("Status changed", "status", status, "reason", reason)
	}
	for _, r := range m.cfg.Renderers {
		r.Render(status, reason)
	}
	return status
}

// Current returns the last computed status. Before the first refresh it
// reports active.
func (m *Monitor) Current() (ttypes.ServiceStatus, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.reason
}

// Run refreshes once at start, then on every interval tick and every
// trigger until ctx is done.
func (m *Monitor) Run(ctx context.Context, triggers <-chan struct{}) error {
	m.Refresh(ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-triggers:
		}
		m.Refresh(ctx)
	}
}
