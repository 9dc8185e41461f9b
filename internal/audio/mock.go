package audio

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep"
)

// MockSink simulates an audio device for tests. Each track drains its stream
// immediately, then reports completion after Delay unless stopped first.
type MockSink struct {
	Rate  beep.SampleRate
	Delay time.Duration

	// Hold keeps every track playing until Stop or Release is called.
	Hold bool

	// StartErr makes Start fail.
	StartErr error

	mu      sync.Mutex
	tracks  []*MockTrack
	started atomic.Int64
}

// NewMockSink returns a mock sink at 44100 Hz that finishes tracks at once.
func NewMockSink() *MockSink {
	return &MockSink{Rate: 44100}
}

// SampleRate implements Sink.
func (m *MockSink) SampleRate() beep.SampleRate { return m.Rate }

// Start implements Sink.
func (m *MockSink) Start(stream beep.Streamer) (Track, error) {
	if m.StartErr != nil {
		return nil, m.StartErr
	}

	samples := 0
	buf := make([][2]float64, 512)
	for {
		n, ok := stream.Stream(buf)
		samples += n
		if !ok {
			break
		}
	}

	t := &MockTrack{Samples: samples, done: make(chan struct{}), release: make(chan struct{}), err: stream.Err()}

	m.mu.Lock()
	m.tracks = append(m.tracks, t)
	m.mu.Unlock()
	m.started.Add(1)

	go func() {
		if m.Hold {
			<-t.release
		} else if m.Delay > 0 {
			select {
			case <-time.After(m.Delay):
			case <-t.release:
			}
		}
		close(t.done)
	}()
	return t, nil
}

// Started returns how many tracks were started.
func (m *MockSink) Started() int { return int(m.started.Load()) }

// Tracks returns the tracks started so far.
func (m *MockSink) Tracks() []*MockTrack {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockTrack(nil), m.tracks...)
}

// MockTrack is a track started by MockSink.
type MockTrack struct {
	// Samples is how many samples the stream produced.
	Samples int

	done    chan struct{}
	release chan struct{}
	once    sync.Once
	stopped atomic.Bool
	err     error
}

// Done implements Track.
func (t *MockTrack) Done() <-chan struct{} { return t.done }

// Err implements Track.
func (t *MockTrack) Err() error { return t.err }

// Stop implements Track.
func (t *MockTrack) Stop() {
	t.stopped.Store(true)
	t.Release()
}

// Release finishes a held track as if it had played to the end.
func (t *MockTrack) Release() {
	t.once.Do(func() { close(t.release) })
}

// Stopped reports whether Stop was called.
func (t *MockTrack) Stopped() bool { return t.stopped.Load() }

var _ Sink = (*MockSink)(nil)
