// Package ttypes contains shared types for the caption-to-speech pipeline.
// This package is used to break import cycles between caption, filter, tts,
// audio, pipeline and status packages.
package ttypes

import (
	"time"
)

// CaptionSnapshot is one observed rendering of the on-screen caption text.
type CaptionSnapshot struct {
	// Text is the canonical caption string (segments joined by single spaces).
	Text string

	// ObservedAt is when the observer read the text.
	ObservedAt time.Time
}

// Action is the outcome of a filter decision.
type Action int

const (
	// ActionIgnore drops the snapshot without touching pipeline state.
	ActionIgnore Action = iota

	// ActionSuppress drops the snapshot but remembers it as the last text.
	ActionSuppress

	// ActionDispatch hands the snapshot to the dispatch coordinator.
	ActionDispatch
)

// String returns the string representation of the action.
func (a Action) String() string {
	switch a {
	case ActionIgnore:
		return "ignore"
	case ActionSuppress:
		return "suppress"
	case ActionDispatch:
		return "dispatch"
	default:
		return "unknown"
	}
}

// FilterDecision is computed per snapshot and never stored.
type FilterDecision struct {
	Action Action
	Reason string
}

// DispatchRequest is a single "speak this text" unit of work.
type DispatchRequest struct {
	// ID correlates log lines for one request.
	ID          string
	Text        string
	VoiceID     string
	RatePercent int
}

// SlotState is the single-flight gate of the dispatch coordinator.
type SlotState int

const (
	// SlotIdle means a new request may be accepted.
	SlotIdle SlotState = iota

	// SlotInFlight means a request is being synthesized or played.
	SlotInFlight
)

// String returns the string representation of the slot state.
func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "idle"
	case SlotInFlight:
		return "in-flight"
	default:
		return "unknown"
	}
}

// PipelineState is owned by the dispatch coordinator and handed by pointer to
// the caption filter. LastText and LastTextAt only ever move forward.
type PipelineState struct {
	Slot       SlotState
	LastText   string
	LastTextAt time.Time
	Enabled    bool
}

// Settings are the user-facing persisted settings.
type Settings struct {
	Enabled      bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	VoiceID      string `json:"voiceId" yaml:"voice_id" mapstructure:"voice_id"`
	SpeedPercent int    `json:"speedPercent" yaml:"speed_percent" mapstructure:"speed_percent"`
}

// Default settings values.
const (
	DefaultVoiceID      = "uk-UA-PolinaNeural"
	DefaultSpeedPercent = 100
	MinSpeedPercent     = 50
	MaxSpeedPercent     = 200
)

// DefaultSettings returns the settings used when nothing is persisted yet.
func DefaultSettings() Settings {
	return Settings{
		Enabled:      true,
		VoiceID:      DefaultVoiceID,
		SpeedPercent: DefaultSpeedPercent,
	}
}

// ServiceStatus is the tri-state health indicator.
type ServiceStatus int

const (
	// StatusActive means speech is enabled and the backend is reachable.
	StatusActive ServiceStatus = iota

	// StatusDisabled means the user switched speech off.
	StatusDisabled

	// StatusServerError means the backend could not be reached.
	StatusServerError
)

// String returns the string representation of the status.
func (s ServiceStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusDisabled:
		return "disabled"
	case StatusServerError:
		return "server-error"
	default:
		return "unknown"
	}
}

// BackendKind identifies the synthesis backend chosen for a session.
type BackendKind string

const (
	// BackendRemote is the networked synthesis service (policy A).
	BackendRemote BackendKind = "remote"

	// BackendLocal is the on-device engine (policy B).
	BackendLocal BackendKind = "local"

	// BackendAuto lets the selector probe for a local engine.
	BackendAuto BackendKind = "auto"
)

// Voice describes one voice reported by an on-device engine.
type Voice struct {
	// Name is the engine-reported display name.
	Name string

	// Language is a BCP-47 tag such as "uk-UA".
	Language string

	// Path points at the voice model, if the engine uses files.
	Path string
}
