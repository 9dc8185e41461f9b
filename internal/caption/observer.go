package caption

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/caption-voice/internal/tts"
	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

// Observer timing defaults.
const (
	DefaultPollInterval   = 500 * time.Millisecond
	DefaultDiscoveryRetry = 2 * time.Second
	DefaultStartDelay     = 3 * time.Second
)

// Config holds observer configuration.
type Config struct {
	// PollInterval is the fallback polling period (default 500ms)
	PollInterval time.Duration

	// DiscoveryRetry is the wait between container lookups (default 2s)
	DiscoveryRetry time.Duration

	// StartDelay precedes the first container lookup (default 3s).
	// A negative value disables it.
	StartDelay time.Duration

	// Selectors default to DefaultSelectors()
	Selectors Selectors

	// Clock stamps snapshots (defaults to the system clock)
	Clock ttypes.Clock
}

// Observer turns page readings into caption snapshots.
type Observer struct {
	source Source
	cfg    Config
	logger *log.Logger
}

// NewObserver creates an observer reading from source.
func NewObserver(source Source, cfg Config) *Observer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.DiscoveryRetry <= 0 {
		cfg.DiscoveryRetry = DefaultDiscoveryRetry
	}
	if cfg.StartDelay == 0 {
		cfg.StartDelay = DefaultStartDelay
	}
	if len(cfg.Selectors.Containers) == 0 && len(cfg.Selectors.Text) == 0 {
		cfg.Selectors = DefaultSelectors()
	}
	if cfg.Clock == nil {
		cfg.Clock = ttypes.SystemClock{}
	}
	return &Observer{source: source, cfg: cfg, logger: log.WithPrefix("caption")}
}

// Observe reads the page once. It returns nil when no caption container is
// present or no caption text matches.
func (o *Observer) Observe(ctx context.Context) (*ttypes.CaptionSnapshot, error) {
	page, err := o.read(ctx)
	if err != nil || page == nil {
		return nil, err
	}
	if _, ok := page.Container(o.cfg.Selectors); !ok {
		return nil, nil
	}
	text, ok := page.Text(o.cfg.Selectors)
	if !ok {
		return nil, nil
	}
	return &ttypes.CaptionSnapshot{Text: text, ObservedAt: o.cfg.Clock.Now()}, nil
}

// Run waits for the start delay, then for a caption container, then emits a
// snapshot on every change notification and every poll tick until ctx ends.
func (o *Observer) Run(ctx context.Context, out chan<- ttypes.CaptionSnapshot) error {
	if o.cfg.StartDelay > 0 {
		o.logger.Debug("Waiting before observing captions", "delay", o.cfg.StartDelay)
		if err := sleep(ctx, o.cfg.StartDelay); err != nil {
			return err
		}
	}

	if err := o.discover(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()
	changes := o.source.Changes()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-changes:
		}

		snap, err := o.Observe(ctx)
		if err != nil {
			o.logger.Debug("Reading captions failed", "err", err)
			continue
		}
		if snap == nil {
			continue
		}

		select {
		case out <- *snap:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// discover blocks until a caption container shows up.
func (o *Observer) discover(ctx context.Context) error {
	for {
		page, err := o.read(ctx)
		if err == nil && page != nil {
			if sel, ok := page.Container(o.cfg.Selectors); ok {
				o.logger.Info("Caption container found", "selector", sel)
				return nil
			}
		}
		o.logger.Debug("Caption container not found, retrying",
			"code", tts.ErrorCodeContainer, "retry", o.cfg.DiscoveryRetry, "err", err)

		if err := sleep(ctx, o.cfg.DiscoveryRetry); err != nil {
			return err
		}
	}
}

func (o *Observer) read(ctx context.Context) (*Page, error) {
	html, err := o.source.Read(ctx)
	if err != nil {
		return nil, err
	}
	if len(html) == 0 {
		return nil, nil
	}
	return ParsePage(html)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
