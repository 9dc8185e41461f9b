package filter

import (
	"testing"
	"time"

	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func snap(text string) ttypes.CaptionSnapshot {
	return ttypes.CaptionSnapshot{Text: text, ObservedAt: t0}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		state      ttypes.PipelineState
		text       string
		now        time.Time
		want       ttypes.Action
		wantReason string
		wantLast   string
	}{
		{
			name:       "disabled ignores everything",
			state:      ttypes.PipelineState{Enabled: false, LastText: "old"},
			text:       "Hello",
			now:        t0,
			want:       ttypes.ActionIgnore,
			wantReason: ReasonDisabled,
			wantLast:   "old",
		},
		{
			name:       "empty text",
			state:      ttypes.PipelineState{Enabled: true},
			text:       "",
			now:        t0,
			want:       ttypes.ActionIgnore,
			wantReason: ReasonEmpty,
		},
		{
			name:       "duplicate text",
			state:      ttypes.PipelineState{Enabled: true, LastText: "Hello", LastTextAt: t0.Add(-time.Minute)},
			text:       "Hello",
			now:        t0,
			want:       ttypes.ActionIgnore,
			wantReason: ReasonDuplicate,
			wantLast:   "Hello",
		},
		{
			name:       "exactly at the interval is too soon",
			state:      ttypes.PipelineState{Enabled: true, LastText: "a", LastTextAt: t0.Add(-200 * time.Millisecond)},
			text:       "b",
			now:        t0,
			want:       ttypes.ActionIgnore,
			wantReason: ReasonTooSoon,
			wantLast:   "a",
		},
		{
			name:       "just past the interval dispatches",
			state:      ttypes.PipelineState{Enabled: true, LastText: "a", LastTextAt: t0.Add(-201 * time.Millisecond)},
			text:       "b",
			now:        t0,
			want:       ttypes.ActionDispatch,
			wantReason: ReasonNew,
			wantLast:   "b",
		},
		{
			name:       "noise is suppressed and remembered",
			state:      ttypes.PipelineState{Enabled: true},
			text:       "[музика]",
			now:        t0,
			want:       ttypes.ActionSuppress,
			wantReason: ReasonNoise,
			wantLast:   "[музика]",
		},
		{
			name:       "noise matching ignores case",
			state:      ttypes.PipelineState{Enabled: true},
			text:       "[МУЗИКА]",
			now:        t0,
			want:       ttypes.ActionSuppress,
			wantReason: ReasonNoise,
			wantLast:   "[МУЗИКА]",
		},
		{
			name:       "noise phrase inside a longer caption",
			state:      ttypes.PipelineState{Enabled: true},
			text:       "Ведучий (Музика) продовжує",
			now:        t0,
			want:       ttypes.ActionSuppress,
			wantReason: ReasonNoise,
			wantLast:   "Ведучий (Музика) продовжує",
		},
		{
			name:       "english noise",
			state:      ttypes.PipelineState{Enabled: true},
			text:       "[Applause]",
			now:        t0,
			want:       ttypes.ActionSuppress,
			wantReason: ReasonNoise,
			wantLast:   "[Applause]",
		},
		{
			name:       "first caption dispatches",
			state:      ttypes.PipelineState{Enabled: true},
			text:       "Добрий день",
			now:        t0,
			want:       ttypes.ActionDispatch,
			wantReason: ReasonNew,
			wantLast:   "Добрий день",
		},
	}

	f := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := tt.state
			before := state
			got := f.Decide(snap(tt.text), &state, tt.now)

			if got.Action != tt.want {
				t.Errorf("Action = %s, want %s", got.Action, tt.want)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.wantReason)
			}
			if state.LastText != tt.wantLast {
				t.Errorf("LastText = %q, want %q", state.LastText, tt.wantLast)
			}
			if got.Action == ttypes.ActionIgnore && state != before {
				t.Errorf("Ignore mutated state: %+v -> %+v", before, state)
			}
			if got.Action != ttypes.ActionIgnore && !state.LastTextAt.Equal(tt.now) {
				t.Errorf("LastTextAt = %v, want %v", state.LastTextAt, tt.now)
			}
		})
	}
}

// Hello at 0ms, Hello at 300ms, World at 600ms: exactly two dispatches.
func TestDecide_HelloHelloWorld(t *testing.T) {
	f := New()
	state := &ttypes.PipelineState{Enabled: true}

	steps := []struct {
		text string
		at   time.Duration
		want ttypes.Action
	}{
		{"Hello", 0, ttypes.ActionDispatch},
		{"Hello", 300 * time.Millisecond, ttypes.ActionIgnore},
		{"World", 600 * time.Millisecond, ttypes.ActionDispatch},
	}
	for _, s := range steps {
		if got := f.Decide(snap(s.text), state, t0.Add(s.at)); got.Action != s.want {
			t.Errorf("%s at %v: Action = %s, want %s", s.text, s.at, got.Action, s.want)
		}
	}
}

func TestDecide_BurstNeverDispatchesTwice(t *testing.T) {
	f := New()
	state := &ttypes.PipelineState{Enabled: true}

	dispatched := 0
	for i := 0; i < 10; i++ {
		text := string(rune('a' + i))
		if f.Decide(snap(text), state, t0.Add(time.Duration(i)*50*time.Millisecond)).Action == ttypes.ActionDispatch {
			dispatched++
		}
	}
	// 50ms spacing: only every fifth snapshot clears the 200ms window.
	if dispatched != 2 {
		t.Errorf("dispatched = %d, want 2", dispatched)
	}
}

func TestOptions(t *testing.T) {
	f := New(WithMinInterval(time.Second), WithNoisePhrases([]string{"  [Intro] ", ""}))

	if !f.IsNoise("[INTRO] music") {
		t.Error("custom phrase not matched")
	}
	if f.IsNoise("[музика]") {
		t.Error("default phrases should be replaced")
	}

	state := &ttypes.PipelineState{Enabled: true, LastText: "a", LastTextAt: t0}
	if got := f.Decide(snap("b"), state, t0.Add(500*time.Millisecond)); got.Action != ttypes.ActionIgnore {
		t.Errorf("custom interval not applied: %s", got.Action)
	}
}
