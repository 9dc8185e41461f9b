// Package filter decides what happens to each observed caption snapshot:
// ignore it, remember it without speaking, or hand it to the dispatcher.
package filter

import (
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

// DefaultMinInterval is the minimum spacing between two accepted captions.
const DefaultMinInterval = 200 * time.Millisecond

// DefaultNoisePhrases are the caption annotations that should not be spoken.
var DefaultNoisePhrases = []string{
	"[музика]",
	"(музика)",
	"[оплески]",
	"[сміх]",
	"[двигун ревіння]",
	"(створено автоматично)",
	"⚙",
	"[music]",
	"(music)",
	"[applause]",
	"[laughter]",
	"(auto-generated)",
}

// Decision reasons.
const (
	ReasonDisabled  = "disabled"
	ReasonEmpty     = "empty"
	ReasonDuplicate = "duplicate"
	ReasonTooSoon   = "too soon"
	ReasonNoise     = "noise"
	ReasonNew       = "new caption"
)

// Filter holds the configuration of the caption filter. It keeps no state of
// its own; everything mutable lives in the PipelineState passed to Decide.
type Filter struct {
	minInterval time.Duration
	phrases     []string
}

// Option configures a Filter.
type Option func(*Filter)

// WithMinInterval overrides the rate-limit window.
func WithMinInterval(d time.Duration) Option {
	return func(f *Filter) { f.minInterval = d }
}

// WithNoisePhrases replaces the noise phrase list.
func WithNoisePhrases(phrases []string) Option {
	return func(f *Filter) { f.phrases = phrases }
}

// New creates a filter with the default interval and noise phrases.
func New(opts ...Option) *Filter {
	f := &Filter{
		minInterval: DefaultMinInterval,
		phrases:     DefaultNoisePhrases,
	}
	for _, opt := range opts {
		opt(f)
	}

	fold := cases.Fold()
	folded := make([]string, 0, len(f.phrases))
	for _, p := range f.phrases {
		if p = strings.TrimSpace(p); p != "" {
			folded = append(folded, fold.String(p))
		}
	}
	f.phrases = folded
	return f
}

// Decide applies the rules in order; the first match wins.
// Suppress and Dispatch advance state.LastText and state.LastTextAt;
// Ignore leaves state untouched.
func (f *Filter) Decide(snap ttypes.CaptionSnapshot, state *ttypes.PipelineState, now time.Time) ttypes.FilterDecision {
	if !state.Enabled {
		return ttypes.FilterDecision{Action: ttypes.ActionIgnore, Reason: ReasonDisabled}
	}

	text := snap.Text
	if text == "" {
		return ttypes.FilterDecision{Action: ttypes.ActionIgnore, Reason: ReasonEmpty}
	}
	if text == state.LastText {
		return ttypes.FilterDecision{Action: ttypes.ActionIgnore, Reason: ReasonDuplicate}
	}
	if !state.LastTextAt.IsZero() && now.Sub(state.LastTextAt) <= f.minInterval {
		return ttypes.FilterDecision{Action: ttypes.ActionIgnore, Reason: ReasonTooSoon}
	}

	state.LastText = text
	state.LastTextAt = now

	if f.IsNoise(text) {
		return ttypes.FilterDecision{Action: ttypes.ActionSuppress, Reason: ReasonNoise}
	}
	return ttypes.FilterDecision{Action: ttypes.ActionDispatch, Reason: ReasonNew}
}

// IsNoise reports whether text contains one of the noise phrases,
// compared under Unicode case folding. A Caser is stateful, so each call
// gets its own.
func (f *Filter) IsNoise(text string) bool {
	folded := cases.Fold().String(text)
	for _, p := range f.phrases {
		if strings.Contains(folded, p) {
			return true
		}
	}
	return false
}
