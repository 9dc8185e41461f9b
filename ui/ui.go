// Package ui is the live terminal view of a running pipeline.
package ui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/caption-voice/internal/pipeline"
	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

// Dispatcher is the part of the coordinator the view reads and drives.
type Dispatcher interface {
	State() ttypes.PipelineState
	Settings() ttypes.Settings
	Backend() ttypes.BackendKind
	Events() <-chan pipeline.Event
	ApplySettings(ctx context.Context, s ttypes.Settings) error
}

// StatusSource reports the last computed service status.
type StatusSource interface {
	Current() (ttypes.ServiceStatus, string)
}

// Deps wires the view to the running pipeline.
type Deps struct {
	Dispatcher Dispatcher
	Status     StatusSource

	// SaveSettings persists settings changed from the keyboard. Optional.
	SaveSettings func(ttypes.Settings) error
}

// NewProgram returns a new Tea program.
func NewProgram(ctx context.Context, cfg Config, deps Deps) *tea.Program {
	log.Debug(
		"Starting caption-voice view",
		"width", cfg.Width,
		"refresh", cfg.Refresh,
		"max_errors", cfg.MaxErrors,
	)

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if cfg.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	return tea.NewProgram(newModel(ctx, cfg, deps), opts...)
}

type (
	tickMsg     time.Time
	activityMsg pipeline.Event
	appliedMsg  struct{ err error }
)

type failure struct {
	at  time.Time
	err string
}

type model struct {
	ctx  context.Context
	cfg  Config
	deps Deps

	spinner spinner.Model

	state    ttypes.PipelineState
	settings ttypes.Settings
	status   ttypes.ServiceStatus
	reason   string

	speaking string
	spoken   int
	dropped  int
	failures []failure
}

func newModel(ctx context.Context, cfg Config, deps Deps) model {
	if cfg.Width <= 0 {
		cfg.Width = 80
	}
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = 5
	}
	if cfg.Refresh <= 0 {
		cfg.Refresh = 250 * time.Millisecond
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	m := model{ctx: ctx, cfg: cfg, deps: deps, spinner: sp}
	m.poll()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.tick(), m.waitForActivity())
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.cfg.Refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// waitForActivity reads the next pipeline event.
func (m model) waitForActivity() tea.Cmd {
	events := m.deps.Dispatcher.Events()
	return func() tea.Msg {
		select {
		case e, ok := <-events:
			if !ok {
				return nil
			}
			return activityMsg(e)
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *model) poll() {
	m.state = m.deps.Dispatcher.State()
	m.settings = m.deps.Dispatcher.Settings()
	if m.deps.Status != nil {
		m.status, m.reason = m.deps.Status.Current()
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.cfg.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		m.poll()
		return m, m.tick()

	case activityMsg:
		m.record(pipeline.Event(msg))
		return m, m.waitForActivity()

	case appliedMsg:
		if msg.err != nil {
			m.fail(time.Now(), msg.err.Error())
		}
		m.poll()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *model) record(e pipeline.Event) {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	switch e.Kind {
	case pipeline.EventDispatched:
		m.speaking = e.Text
		m.state.Slot = ttypes.SlotInFlight
	case pipeline.EventCompleted:
		m.spoken++
		m.state.Slot = ttypes.SlotIdle
	case pipeline.EventFailed:
		if e.Err != nil {
			m.fail(at, e.Err.Error())
		}
		m.state.Slot = ttypes.SlotIdle
	case pipeline.EventDropped:
		m.dropped++
	case pipeline.EventSettings:
		m.settings = e.Settings
	}
}

func (m *model) fail(at time.Time, err string) {
	m.failures = append(m.failures, failure{at: at, err: err})
	if n := len(m.failures); n > m.cfg.MaxErrors {
		m.failures = m.failures[n-m.cfg.MaxErrors:]
	}
}
