package ttypes

import (
	"context"
	"time"
)

// Clock abstracts time so filters, pollers and monitors can be driven by tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// VoiceEngine is an on-device synthesis engine.
// Implementations may populate their voice list lazily after Start.
type VoiceEngine interface {
	// Name returns a short engine identifier (e.g. "piper").
	Name() string

	// Available reports whether the engine binary/runtime is usable at all.
	Available() bool

	// Start begins voice discovery. It must not block on discovery.
	Start(ctx context.Context) error

	// Voices returns the voices discovered so far; possibly empty.
	Voices() []Voice

	// Render synthesizes text with voice and returns raw 16-bit mono PCM
	// along with its sample rate.
	Render(ctx context.Context, text string, voice Voice, ratePercent int) ([]byte, int, error)
}

// AudioCache stores synthesized audio keyed by request content.
type AudioCache interface {
	// Get retrieves cached audio for the given key.
	// Returns nil, false if not found.
	Get(key string) ([]byte, bool)

	// Put stores audio data with the given key.
	Put(key string, audio []byte) error
}

// StatusRenderer receives every recomputed service status.
type StatusRenderer interface {
	Render(status ServiceStatus, reason string)
}
