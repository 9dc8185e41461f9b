package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dgnsrekt/caption-voice/internal/pipeline"
	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

type fakeDispatcher struct {
	mu       sync.Mutex
	state    ttypes.PipelineState
	settings ttypes.Settings
	applied  []ttypes.Settings
	applyErr error
	events   chan pipeline.Event
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{settings: ttypes.DefaultSettings(), events: make(chan pipeline.Event, 4)}
}

func (d *fakeDispatcher) State() ttypes.PipelineState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *fakeDispatcher) Settings() ttypes.Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings
}

func (d *fakeDispatcher) Backend() ttypes.BackendKind   { return ttypes.BackendRemote }
func (d *fakeDispatcher) Events() <-chan pipeline.Event { return d.events }

func (d *fakeDispatcher) ApplySettings(_ context.Context, s ttypes.Settings) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.applyErr != nil {
		return d.applyErr
	}
	d.settings = s
	d.applied = append(d.applied, s)
	return nil
}

type fixedStatus struct {
	status ttypes.ServiceStatus
	reason string
}

func (s fixedStatus) Current() (ttypes.ServiceStatus, string) { return s.status, s.reason }

func keyMsg(k string) tea.KeyMsg {
	if k == "ctrl+c" {
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func testModel(d *fakeDispatcher, saved *[]ttypes.Settings) model {
	deps := Deps{Dispatcher: d, Status: fixedStatus{ttypes.StatusActive, "ready"}}
	if saved != nil {
		deps.SaveSettings = func(s ttypes.Settings) error {
			*saved = append(*saved, s)
			return nil
		}
	}
	return newModel(context.Background(), Config{Width: 60, MaxErrors: 2}, deps)
}

// run executes cmd and feeds its message back into the model.
func run(t *testing.T, m model, cmd tea.Cmd) model {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	next, _ := m.Update(cmd())
	return next.(model)
}

func TestKeys_Speed(t *testing.T) {
	tests := []struct {
		key   string
		start int
		want  int
	}{
		{"+", 100, 125},
		{"=", 175, 200},
		{"-", 100, 75},
		{"_", 60, 50},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			d := newFakeDispatcher()
			d.settings.SpeedPercent = tt.start
			var saved []ttypes.Settings
			m := testModel(d, &saved)

			next, cmd := m.Update(keyMsg(tt.key))
			m = run(t, next.(model), cmd)

			if m.settings.SpeedPercent != tt.want {
				t.Errorf("speed = %d, want %d", m.settings.SpeedPercent, tt.want)
			}
			if len(d.applied) != 1 || d.applied[0].SpeedPercent != tt.want {
				t.Errorf("applied = %+v", d.applied)
			}
			if len(saved) != 1 {
				t.Errorf("saved %d times", len(saved))
			}
		})
	}
}

func TestKeys_SpeedAtLimitIsNoop(t *testing.T) {
	d := newFakeDispatcher()
	d.settings.SpeedPercent = 200
	m := testModel(d, nil)

	if _, cmd := m.Update(keyMsg("+")); cmd != nil {
		t.Error("expected no command at the top speed")
	}
}

func TestKeys_ToggleSpeech(t *testing.T) {
	d := newFakeDispatcher()
	m := testModel(d, nil)

	next, cmd := m.Update(keyMsg("e"))
	m = run(t, next.(model), cmd)

	if m.settings.Enabled || d.Settings().Enabled {
		t.Error("speech still enabled")
	}
	if !strings.Contains(m.View(), "speech off") {
		t.Error("view does not show speech off")
	}
}

func TestKeys_ApplyFailureIsShown(t *testing.T) {
	d := newFakeDispatcher()
	d.applyErr = errors.New("dispatcher stopped")
	m := testModel(d, nil)

	next, cmd := m.Update(keyMsg("e"))
	m = run(t, next.(model), cmd)

	if len(m.failures) != 1 || !strings.Contains(m.View(), "dispatcher stopped") {
		t.Errorf("failure not shown: %+v", m.failures)
	}
	if !m.settings.Enabled {
		t.Error("settings not re-read after failure")
	}
}

func TestKeys_Quit(t *testing.T) {
	for _, k := range []string{"q", "ctrl+c"} {
		m := testModel(newFakeDispatcher(), nil)
		_, cmd := m.Update(keyMsg(k))
		if cmd == nil {
			t.Fatalf("%s: no command", k)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%s: expected quit", k)
		}
	}
}

func TestRecord(t *testing.T) {
	m := testModel(newFakeDispatcher(), nil)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	m.record(pipeline.Event{Kind: pipeline.EventDispatched, Text: "Hello world"})
	if m.state.Slot != ttypes.SlotInFlight || !strings.Contains(m.View(), "Hello world") {
		t.Error("dispatch not shown")
	}

	m.record(pipeline.Event{Kind: pipeline.EventCompleted})
	m.record(pipeline.Event{Kind: pipeline.EventDropped})
	if m.spoken != 1 || m.dropped != 1 || m.state.Slot != ttypes.SlotIdle {
		t.Errorf("spoken=%d dropped=%d slot=%v", m.spoken, m.dropped, m.state.Slot)
	}

	for _, msg := range []string{"first", "second", "Помилка сервера: 500"} {
		m.record(pipeline.Event{Kind: pipeline.EventFailed, At: at, Err: errors.New(msg)})
	}
	if len(m.failures) != 2 || m.failures[0].err != "second" {
		t.Errorf("failures = %+v, want the last two", m.failures)
	}
	if !strings.Contains(m.View(), "12:00:00") {
		t.Error("failure time not shown")
	}

	s := ttypes.Settings{Enabled: true, VoiceID: "uk-UA-OstapNeural", SpeedPercent: 150}
	m.record(pipeline.Event{Kind: pipeline.EventSettings, Settings: s})
	if !strings.Contains(m.View(), "1.5x") {
		t.Error("speed change not shown")
	}
}

func TestView_TruncatesLongCaption(t *testing.T) {
	d := newFakeDispatcher()
	d.state.LastText = strings.Repeat("довгий ", 40)
	m := testModel(d, nil)

	view := m.View()
	if !strings.Contains(view, ellipsis) {
		t.Error("long caption not truncated")
	}
	if !strings.Contains(view, "active") {
		t.Error("service status missing")
	}
}

func TestActivityReadsEvents(t *testing.T) {
	d := newFakeDispatcher()
	m := testModel(d, nil)

	d.events <- pipeline.Event{Kind: pipeline.EventDispatched, Text: "queued"}
	msg := m.waitForActivity()()
	e, ok := msg.(activityMsg)
	if !ok || e.Text != "queued" {
		t.Fatalf("got %#v", msg)
	}

	next, cmd := m.Update(msg)
	if cmd == nil {
		t.Error("view stopped listening for events")
	}
	if next.(model).speaking != "queued" {
		t.Error("event not recorded")
	}
}
