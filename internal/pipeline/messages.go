package pipeline

import (
	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

// Action tags a message exchanged between the observer and dispatch contexts.
type Action string

const (
	// ActionSpeak asks the dispatcher to speak Text (observer → dispatch).
	ActionSpeak Action = "speak"

	// ActionPlayAudio carries synthesized audio as a data URL (dispatch → observer).
	ActionPlayAudio Action = "playAudio"

	// ActionTTSError reports a failed request (dispatch → observer).
	ActionTTSError Action = "ttsError"

	// ActionSettingsUpdated broadcasts new settings (settings owner → both).
	ActionSettingsUpdated Action = "settingsUpdated"

	// ActionPlaybackEnded frees the single-flight slot (observer → dispatch).
	ActionPlaybackEnded Action = "playbackEnded"
)

// ReasonDisabled is the acknowledgement reason for a speak sent while disabled.
const ReasonDisabled = "disabled"

// Message is the wire form of every action. Acknowledgements carry no action,
// only Success and Reason.
type Message struct {
	Action    Action           `json:"action,omitempty"`
	Text      string           `json:"text,omitempty"`
	AudioData string           `json:"audioData,omitempty"`
	Error     string           `json:"error,omitempty"`
	Settings  *ttypes.Settings `json:"settings,omitempty"`
	Success   *bool            `json:"success,omitempty"`
	Reason    string           `json:"reason,omitempty"`
}

// IsAck reports whether m is an acknowledgement rather than an action.
func (m Message) IsAck() bool {
	return m.Action == "" && m.Success != nil
}

// DisabledAck is the immediate answer to a speak while speech is off.
func DisabledAck() Message {
	ok := false
	return Message{Success: &ok, Reason: ReasonDisabled}
}

// Peer is an observer context the dispatcher can deliver messages to.
// Deliver must not block.
type Peer interface {
	Deliver(msg Message)
}

// PeerFunc adapts a function to the Peer interface.
type PeerFunc func(Message)

// Deliver calls f(msg).
func (f PeerFunc) Deliver(msg Message) { f(msg) }
