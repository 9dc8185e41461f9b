package tts

import (
	"context"

	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

// Backend is one of the two synthesis strategies. It is chosen once per
// session by the Selector and never switched afterwards.
type Backend interface {
	// Kind reports which policy the backend implements.
	Kind() ttypes.BackendKind

	// Speak executes one dispatch request.
	// Remote backends return the encoded audio for the observer context to play.
	// Local backends play directly and return once the utterance has ended.
	Speak(ctx context.Context, req ttypes.DispatchRequest) (Outcome, error)
}

// Outcome is the result of a successful Speak call.
type Outcome struct {
	// Audio is the raw payload returned by a remote backend.
	Audio []byte

	// MIMEType describes Audio (e.g. "audio/mpeg").
	MIMEType string

	// Played is true when the backend already played the utterance.
	Played bool
}

// Synthesizer is the remote "speak this text" contract.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string, ratePercent int) ([]byte, error)
}

// Prober checks reachability of a backend for the status monitor.
type Prober interface {
	Probe(ctx context.Context) error
}
