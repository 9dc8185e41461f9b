package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dgnsrekt/caption-voice/internal/tts"
	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit

	case "+", "=", "up":
		next := m.settings
		next.SpeedPercent = tts.StepSpeed(next.SpeedPercent, true)
		return m.change(next)

	case "-", "_", "down":
		next := m.settings
		next.SpeedPercent = tts.StepSpeed(next.SpeedPercent, false)
		return m.change(next)

	case "e", " ":
		next := m.settings
		next.Enabled = !next.Enabled
		return m.change(next)
	}
	return m, nil
}

// change applies next optimistically and pushes it to the dispatcher.
func (m model) change(next ttypes.Settings) (tea.Model, tea.Cmd) {
	if next == m.settings {
		return m, nil
	}
	m.settings = next
	return m, m.applySettings(next)
}

func (m model) applySettings(s ttypes.Settings) tea.Cmd {
	return func() tea.Msg {
		if err := m.deps.Dispatcher.ApplySettings(m.ctx, s); err != nil {
			return appliedMsg{err: err}
		}
		if m.deps.SaveSettings != nil {
			if err := m.deps.SaveSettings(s); err != nil {
				return appliedMsg{err: err}
			}
		}
		return appliedMsg{}
	}
}
