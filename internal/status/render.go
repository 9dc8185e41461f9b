package status

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/gen2brain/beeep"

	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

const appName = "caption-voice"

// RenderFunc adapts a function to ttypes.StatusRenderer.
type RenderFunc func(status ttypes.ServiceStatus, reason string)

// Render calls f.
func (f RenderFunc) Render(status ttypes.ServiceStatus, reason string) { f(status, reason) }

// MultiRenderer fans out to several renderers.
type MultiRenderer []ttypes.StatusRenderer

// Render implements ttypes.StatusRenderer.
func (m MultiRenderer) Render(status ttypes.ServiceStatus, reason string) {
	for _, r := range m {
		r.Render(status, reason)
	}
}

// LogRenderer writes status transitions to a logger.
type LogRenderer struct {
	logger *log.Logger

	mu   sync.Mutex
	last *ttypes.ServiceStatus
}

// NewLogRenderer creates a renderer logging through logger, or a "status"
// sub-logger when nil.
func NewLogRenderer(logger *log.Logger) *LogRenderer {
	if logger == nil {
		logger = log.WithPrefix("status")
	}
	return &LogRenderer{logger: logger}
}

// Render implements ttypes.StatusRenderer.
func (r *LogRenderer) Render(status ttypes.ServiceStatus, reason string) {
	r.mu.Lock()
	same := r.last != nil && *r.last == status
	r.last = &status
	r.mu.Unlock()
	if same {
		return
	}

	if status == ttypes.StatusServerError {
		r.logger.Warn("Speech service unavailable", "reason", reason)
		return
	}
	r.logger.Info("Speech service status", "status", status, "reason", reason)
}

// NotifyRenderer raises a desktop notification when the status changes.
// An initial active status is not announced.
type NotifyRenderer struct {
	notify func(title, message, icon string) error

	mu   sync.Mutex
	last ttypes.ServiceStatus
	seen bool
}

// NewNotifyRenderer creates a desktop-notification renderer.
func NewNotifyRenderer() *NotifyRenderer {
	return &NotifyRenderer{notify: beeep.Notify}
}

// Render implements ttypes.StatusRenderer.
func (r *NotifyRenderer) Render(status ttypes.ServiceStatus, reason string) {
	r.mu.Lock()
	changed := r.seen && status != r.last
	first := !r.seen
	r.last, r.seen = status, true
	r.mu.Unlock()

	if !changed && !(first && status != ttypes.StatusActive) {
		return
	}
	// Notification failures are not worth reporting.
	_ = r.notify(appName+": "+Label(status), Describe(status), "")
}

// Label is a short human name for status.
func Label(status ttypes.ServiceStatus) string {
	switch status {
	case ttypes.StatusActive:
		return "active"
	case ttypes.StatusDisabled:
		return "disabled"
	case ttypes.StatusServerError:
		return "server error"
	default:
		return "unknown"
	}
}

// Describe is a one-line explanation of status.
func Describe(status ttypes.ServiceStatus) string {
	switch status {
	case ttypes.StatusActive:
		return "Captions are being read aloud."
	case ttypes.StatusDisabled:
		return "Speech is switched off."
	case ttypes.StatusServerError:
		return "The speech service cannot be reached."
	default:
		return ""
	}
}

var (
	labelStyle  = lipgloss.NewStyle().Bold(true)
	reasonStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"})
)

// Icon returns the glyph and color for status.
func Icon(status ttypes.ServiceStatus) (string, lipgloss.Color) {
	switch status {
	case ttypes.StatusActive:
		return "●", lipgloss.Color("#00FF00")
	case ttypes.StatusDisabled:
		return "○", lipgloss.Color("#888888")
	case ttypes.StatusServerError:
		return "✗", lipgloss.Color("#FF0000")
	default:
		return "?", lipgloss.Color("#FFFF00")
	}
}

// Format renders a styled one-line status.
func Format(status ttypes.ServiceStatus, reason string) string {
	icon, color := Icon(status)
	line := lipgloss.NewStyle().Foreground(color).Render(icon) + " " + labelStyle.Render(Label(status))
	if reason != "" {
		line += " " + reasonStyle.Render("("+reason+")")
	}
	return line
}

// StyleRenderer prints a styled line to w on every change.
type StyleRenderer struct {
	w io.Writer

	mu   sync.Mutex
	last string
}

// NewStyleRenderer creates a renderer writing to w.
func NewStyleRenderer(w io.Writer) *StyleRenderer {
	return &StyleRenderer{w: w}
}

// Render implements ttypes.StatusRenderer.
func (r *StyleRenderer) Render(status ttypes.ServiceStatus, reason string) {
	line := Format(status, reason)

	r.mu.Lock()
	defer r.mu.Unlock()
	if line == r.last {
		return
	}
	r.last = line
	fmt.Fprintln(r.w, line)
}

var (
	_ ttypes.StatusRenderer = RenderFunc(nil)
	_ ttypes.StatusRenderer = MultiRenderer(nil)
	_ ttypes.StatusRenderer = (*LogRenderer)(nil)
	_ ttypes.StatusRenderer = (*NotifyRenderer)(nil)
	_ ttypes.StatusRenderer = (*StyleRenderer)(nil)
)
