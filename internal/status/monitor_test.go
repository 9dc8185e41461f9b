package status

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgnsrekt/caption-voice/internal/tts"
	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

type stubProber struct {
	err   error
	calls atomic.Int32
}

func (p *stubProber) Probe(ctx context.Context) error {
	p.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("probe without deadline")
	}
	return p.err
}

type settingsStub struct{ s ttypes.Settings }

func (s settingsStub) Settings() ttypes.Settings { return s.s }

type seen struct {
	mu      sync.Mutex
	entries []ttypes.ServiceStatus
	reasons []string
}

func (s *seen) Render(status ttypes.ServiceStatus, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, status)
	s.reasons = append(s.reasons, reason)
}

func (s *seen) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		probe   error
		enabled bool
		want    ttypes.ServiceStatus
	}{
		{"reachable and enabled", nil, true, ttypes.StatusActive},
		{"reachable and disabled", nil, false, ttypes.StatusDisabled},
		{"unreachable and enabled", errors.New("refused"), true, ttypes.StatusServerError},
		{"unreachable wins over disabled", errors.New("refused"), false, ttypes.StatusServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := Evaluate(tt.probe, tt.enabled); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMonitor_RefreshAfterServerError(t *testing.T) {
	prober := &stubProber{err: &tts.ServerError{Status: 500}}
	out := &seen{}
	m := NewMonitor(Config{
		Backend:   ttypes.BackendRemote,
		Prober:    prober,
		Settings:  settingsStub{ttypes.DefaultSettings()},
		Renderers: []ttypes.StatusRenderer{out},
	})

	if got := m.Refresh(context.Background()); got != ttypes.StatusServerError {
		t.Fatalf("Refresh() = %v, want server error", got)
	}
	if status, reason := m.Current(); status != ttypes.StatusServerError || reason != ReasonUnreachable {
		t.Errorf("Current() = %v %q", status, reason)
	}

	prober.err = nil
	if got := m.Refresh(context.Background()); got != ttypes.StatusActive {
		t.Errorf("Refresh() after recovery = %v", got)
	}
	if out.count() != 2 {
		t.Errorf("renderer called %d times, want 2", out.count())
	}
}

func TestMonitor_LocalBackendSkipsProbe(t *testing.T) {
	prober := &stubProber{err: errors.New("down")}
	m := NewMonitor(Config{
		Backend:  ttypes.BackendLocal,
		Prober:   prober,
		Settings: settingsStub{ttypes.DefaultSettings()},
	})

	if got := m.Refresh(context.Background()); got != ttypes.StatusActive {
		t.Errorf("Refresh() = %v, want active", got)
	}
	if _, reason := m.Current(); reason != ReasonLocal {
		t.Errorf("reason = %q", reason)
	}
	if prober.calls.Load() != 0 {
		t.Error("local backend was probed")
	}
}

func TestMonitor_Disabled(t *testing.T) {
	s := ttypes.DefaultSettings()
	s.Enabled = false
	m := NewMonitor(Config{Backend: ttypes.BackendRemote, Prober: &stubProber{}, Settings: settingsStub{s}})

	if got := m.Refresh(context.Background()); got != ttypes.StatusDisabled {
		t.Errorf("Refresh() = %v, want disabled", got)
	}
}

func TestMonitor_RunRefreshesOnTrigger(t *testing.T) {
	prober := &stubProber{}
	out := &seen{}
	m := NewMonitor(Config{
		Backend:   ttypes.BackendRemote,
		Prober:    prober,
		Renderers: []ttypes.StatusRenderer{out},
		Interval:  time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	triggers := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, triggers) }()

	triggers <- struct{}{}
	triggers <- struct{}{}
	deadline := time.Now().Add(2 * time.Second)
	for out.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("renders = %d, want 3", out.count())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v", err)
	}
}

func TestNotifyRenderer_OnlyTransitions(t *testing.T) {
	var titles []string
	r := &NotifyRenderer{notify: func(title, _, _ string) error {
		titles = append(titles, title)
		return nil
	}}

	r.Render(ttypes.StatusActive, ReasonReady)
	r.Render(ttypes.StatusActive, ReasonReady)
	r.Render(ttypes.StatusServerError, ReasonUnreachable)
	r.Render(ttypes.StatusServerError, ReasonUnreachable)
	r.Render(ttypes.StatusDisabled, ReasonDisabled)

	want := []string{"caption-voice: server error", "caption-voice: disabled"}
	if strings.Join(titles, "|") != strings.Join(want, "|") {
		t.Errorf("notifications = %q, want %q", titles, want)
	}
}

func TestNotifyRenderer_AnnouncesBadFirstStatus(t *testing.T) {
	calls := 0
	r := &NotifyRenderer{notify: func(string, string, string) error {
		calls++
		return errors.New("no notification daemon")
	}}
	r.Render(ttypes.StatusServerError, ReasonUnreachable)
	if calls != 1 {
		t.Errorf("notify called %d times, want 1", calls)
	}
}

func TestNotifyRenderer_Message(t *testing.T) {
	var got [3]string
	r := &NotifyRenderer{notify: func(title, message, icon string) error {
		got = [3]string{title, message, icon}
		return nil
	}}
	if NewNotifyRenderer().notify == nil {
		t.Fatal("default renderer has no notifier")
	}

	r.Render(ttypes.StatusServerError, ReasonUnreachable)
	want := [3]string{"caption-voice: server error", Describe(ttypes.StatusServerError), ""}
	if got != want {
		t.Errorf("notify(%q) want %q", got, want)
	}
}

func TestStyleRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := NewStyleRenderer(&buf)

	r.Render(ttypes.StatusActive, ReasonReady)
	r.Render(ttypes.StatusActive, ReasonReady)
	r.Render(ttypes.StatusDisabled, ReasonDisabled)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "active") || !strings.Contains(lines[1], "disabled") {
		t.Errorf("lines = %q", lines)
	}
}

func TestMultiRenderer(t *testing.T) {
	a, b := &seen{}, &seen{}
	var fn int
	MultiRenderer{a, b, RenderFunc(func(ttypes.ServiceStatus, string) { fn++ })}.Render(ttypes.StatusActive, ReasonReady)
	if a.count() != 1 || b.count() != 1 || fn != 1 {
		t.Errorf("fan-out = %d %d %d", a.count(), b.count(), fn)
	}
}
