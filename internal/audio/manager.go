package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// ErrSuperseded resolves a playback that was replaced by a newer one.
var ErrSuperseded = errors.New("playback superseded")

// ErrStopped resolves a playback ended by Stop.
var ErrStopped = errors.New("playback stopped")

// Manager owns the single output and plays one clip at a time.
type Manager struct {
	sink   Sink
	logger *log.Logger

	mu      sync.Mutex
	current *playback
}

type playback struct {
	track  Track
	result chan error
	once   sync.Once
}

// finish resolves the playback; only the first call counts.
func (p *playback) finish(err error) {
	p.once.Do(func() {
		p.result <- err
		close(p.result)
	})
}

// NewManager creates a playback manager on sink.
func NewManager(sink Sink) *Manager {
	return &Manager{sink: sink, logger: log.WithPrefix("playback")}
}

// Play decodes clip and starts it, superseding whatever is playing. The
// returned channel yields exactly one value: nil at normal completion,
// ErrSuperseded, ErrStopped, ctx.Err() or a decode/device error.
func (m *Manager) Play(ctx context.Context, clip Clip) <-chan error {
	result := make(chan error, 1)
	p := &playback{result: result}

	stream, err := Decode(clip, m.sink.SampleRate())
	if err != nil {
		p.finish(fmt.Errorf("decode: %w", err))
		return result
	}

	m.mu.Lock()
	if prev := m.current; prev != nil {
		prev.finish(ErrSuperseded)
		prev.track.Stop()
		m.logger.Debug("Playback superseded")
	}
	track, err := m.sink.Start(stream)
	if err != nil {
		m.current = nil
		m.mu.Unlock()
		p.finish(fmt.Errorf("start playback: %w", err))
		return result
	}
	p.track = track
	m.current = p
	m.mu.Unlock()

	go m.wait(ctx, p)
	return result
}

// PlayPCM plays raw s16le mono samples and blocks until they have played.
func (m *Manager) PlayPCM(ctx context.Context, pcm []byte, sampleRate int) error {
	return <-m.Play(ctx, Clip{Data: pcm, MIMEType: MIMEPCM, SampleRate: sampleRate})
}

// Stop ends the current playback, if any.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.finish(ErrStopped)
		m.current.track.Stop()
		m.current = nil
	}
}

func (m *Manager) wait(ctx context.Context, p *playback) {
	select {
	case <-p.track.Done():
		p.finish(p.track.Err())
	case <-ctx.Done():
		p.track.Stop()
		p.finish(ctx.Err())
	}

	m.mu.Lock()
	if m.current == p {
		m.current = nil
	}
	m.mu.Unlock()
}
