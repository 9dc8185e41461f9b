package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/dgnsrekt/caption-voice/internal/status"
	"github.com/dgnsrekt/caption-voice/internal/tts"
	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("#5A56E0")).Padding(0, 1)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#777777"))
	onStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	offStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF8800"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4672"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F780E2"))
	captionStyle = lipgloss.NewStyle().Italic(true)
)

const ellipsis = "…"

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("caption-voice"))
	b.WriteString("  ")
	b.WriteString(status.Format(m.status, m.reason))
	b.WriteString("  ")
	b.WriteString(dimStyle.Render("backend " + string(m.deps.Dispatcher.Backend())))
	b.WriteString("\n\n")

	b.WriteString(m.settingsView())
	b.WriteString("\n")
	b.WriteString(m.slotView())
	b.WriteString("\n")

	if m.state.LastText != "" {
		b.WriteString(dimStyle.Render("last caption: "))
		b.WriteString(m.clip(m.state.LastText, len("last caption: ")))
		b.WriteString("\n")
	}

	b.WriteString(dimStyle.Render(fmt.Sprintf("spoken %d · dropped %d", m.spoken, m.dropped)))
	b.WriteString("\n")

	if len(m.failures) > 0 {
		b.WriteString("\n")
		for _, f := range m.failures {
			prefix := f.at.Format("15:04:05") + " "
			b.WriteString(dimStyle.Render(prefix))
			b.WriteString(errorStyle.Render(m.clip(f.err, len(prefix))))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("+/- speed · e toggle speech · q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m model) settingsView() string {
	speech := onStyle.Render("speech on")
	if !m.settings.Enabled {
		speech = offStyle.Render("speech off")
	}
	return fmt.Sprintf("%s · voice %s · speed %s",
		speech, m.settings.VoiceID, tts.SpeedDisplay(m.settings.SpeedPercent))
}

func (m model) slotView() string {
	if m.state.Slot != ttypes.SlotInFlight {
		return dimStyle.Render("  idle")
	}
	const label = " speaking: "
	return m.spinner.View() + label + captionStyle.Render(m.clip(m.speaking, 2+len(label)))
}

// clip truncates s to the remaining width after used columns.
func (m model) clip(s string, used int) string {
	w := m.cfg.Width - used
	if w < 10 {
		w = 10
	}
	return truncate.StringWithTail(s, uint(w), ellipsis) //nolint:gosec
}
