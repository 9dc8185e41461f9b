package pipeline

import (
	"time"

	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

// EventKind classifies pipeline activity.
type EventKind int

const (
	EventDecision EventKind = iota
	EventDispatched
	EventCompleted
	EventFailed
	EventDropped
	EventSettings
)

// String returns the string representation of the event kind
func (k EventKind) String() string {
	switch k {
	case EventDecision:
		return "decision"
	case EventDispatched:
		return "dispatched"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	case EventDropped:
		return "dropped"
	case EventSettings:
		return "settings"
	default:
		return "unknown"
	}
}

// Event describes something the dispatcher did. Events feed the terminal
// view; nothing in the pipeline depends on them being read.
type Event struct {
	Kind      EventKind
	At        time.Time
	RequestID string
	Text      string
	Decision  ttypes.FilterDecision
	Slot      ttypes.SlotState
	Settings  ttypes.Settings
	Err       error
}
