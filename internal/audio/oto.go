package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gopxl/beep"
)

// Sink is an audio output with a fixed sample rate.
type Sink interface {
	SampleRate() beep.SampleRate

	// Start begins playing stream and returns immediately.
	Start(stream beep.Streamer) (Track, error)
}

// Track is one stream being played by a Sink.
type Track interface {
	// Done is closed when the stream has drained or Stop was called.
	Done() <-chan struct{}

	// Err reports a stream error after Done is closed.
	Err() error

	// Stop ends playback early. It is safe to call more than once.
	Stop()
}

// SinkConfig contains configuration for the oto sink.
type SinkConfig struct {
	SampleRate int           // 44100 or 48000 Hz only
	BufferSize time.Duration // device buffer length
}

// DefaultSinkConfig returns the default sink configuration.
func DefaultSinkConfig() SinkConfig {
	return SinkConfig{
		SampleRate: 44100,
		BufferSize: 100 * time.Millisecond,
	}
}

// oto allows a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

// OtoSink plays mono s16le audio through the process-wide oto context.
type OtoSink struct {
	ctx  *oto.Context
	rate beep.SampleRate
}

// NewOtoSink opens the audio device. Later calls reuse the first context and
// fail if they ask for a different sample rate.
func NewOtoSink(config SinkConfig) (*OtoSink, error) {
	if err := validateSinkConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   config.SampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   config.BufferSize,
		})
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		otoCtx, otoRate = ctx, config.SampleRate
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoRate != config.SampleRate {
		return nil, fmt.Errorf("audio device already opened at %d Hz", otoRate)
	}

	return &OtoSink{ctx: otoCtx, rate: beep.SampleRate(config.SampleRate)}, nil
}

func validateSinkConfig(config SinkConfig) error {
	if config.SampleRate != 44100 && config.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", config.SampleRate)
	}
	if config.BufferSize < 0 {
		return errors.New("buffer size must not be negative")
	}
	return nil
}

// SampleRate implements Sink.
func (s *OtoSink) SampleRate() beep.SampleRate { return s.rate }

// Start implements Sink.
func (s *OtoSink) Start(stream beep.Streamer) (Track, error) {
	reader := newStreamReader(stream)
	player := s.ctx.NewPlayer(reader)
	if player == nil {
		return nil, errors.New("failed to create oto player")
	}

	t := &otoTrack{player: player, reader: reader, done: make(chan struct{}), stop: make(chan struct{})}
	player.Play()
	go t.watch()
	return t, nil
}

type otoTrack struct {
	player *oto.Player
	// reader stays referenced until the player is closed.
	reader *streamReader

	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	err      error
}

func (t *otoTrack) Done() <-chan struct{} { return t.done }

func (t *otoTrack) Err() error {
	<-t.done
	return t.err
}

func (t *otoTrack) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// watch polls the player; oto has no completion callback.
func (t *otoTrack) watch() {
	defer close(t.done)

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			t.player.Pause()
			t.err = t.player.Close()
			return
		case <-ticker.C:
			if !t.player.IsPlaying() {
				t.err = t.player.Err()
				if err := t.player.Close(); t.err == nil {
					t.err = err
				}
				return
			}
		}
	}
}

var _ Sink = (*OtoSink)(nil)
