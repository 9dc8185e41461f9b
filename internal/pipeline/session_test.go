package pipeline

import (
	"bytes"
	"encoding/binary"
	"net/http"
	"testing"
	"time"

	"github.com/dgnsrekt/caption-voice/internal/audio"
	"github.com/dgnsrekt/caption-voice/internal/tts"
	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

// wavOf builds a 16-bit mono PCM WAV file.
func wavOf(rate int, samples ...int16) []byte {
	var data bytes.Buffer
	for _, s := range samples {
		binary.Write(&data, binary.LittleEndian, s)
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+data.Len()))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(rate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(data.Len()))
	buf.Write(data.Bytes())
	return buf.Bytes()
}

func startSession(t *testing.T, b tts.Backend, sink audio.Sink) (*Coordinator, chan ttypes.CaptionSnapshot, <-chan error) {
	t.Helper()
	c, ctx := startCoordinator(t, b, ttypes.DefaultSettings())
	s := NewSession(c, audio.NewManager(sink))

	snaps := make(chan ttypes.CaptionSnapshot)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, snaps) }()
	return c, snaps, done
}

func TestSession_PlaysRemoteAudioAndReleases(t *testing.T) {
	payload := wavOf(44100, 0, 100, 200, 300, -300, -200, -100, 0)
	mime := http.DetectContentType(payload)

	b := &fakeBackend{outcome: tts.Outcome{Audio: payload, MIMEType: mime}}
	sink := audio.NewMockSink()
	c, snaps, _ := startSession(t, b, sink)

	hello := at(0)
	hello.Text = "Hello"
	snaps <- hello

	waitFor(t, "first playback", func() bool { return sink.Started() == 1 })
	waitFor(t, "slot release", func() bool { return c.State().Slot == ttypes.SlotIdle })
	if got := sink.Tracks()[0].Samples; got != 8 {
		t.Errorf("played %d samples, want 8", got)
	}

	world := at(300)
	world.Text = "World"
	snaps <- world
	waitFor(t, "second playback", func() bool { return sink.Started() == 2 })
	waitFor(t, "slot release", func() bool { return c.State().Slot == ttypes.SlotIdle })
}

func TestSession_DropsCaptionsWhilePlaying(t *testing.T) {
	b := &fakeBackend{outcome: tts.Outcome{Audio: wavOf(44100, 1, 2, 3, 4), MIMEType: audio.MIMEWAV}}
	sink := audio.NewMockSink()
	sink.Hold = true
	c, snaps, _ := startSession(t, b, sink)

	first := at(0)
	first.Text = "first"
	snaps <- first
	waitFor(t, "playback", func() bool { return sink.Started() == 1 })

	second := at(500)
	second.Text = "second"
	snaps <- second

	dropped := nextEvent(t, c, EventDropped)
	if dropped.Text != "second" || dropped.Decision.Reason != ReasonBusy {
		t.Errorf("dropped event = %+v", dropped)
	}
	if got := c.State().LastText; got != "first" {
		t.Errorf("LastText = %q, a dropped caption must not become the last text", got)
	}
	if n := len(b.requests()); n != 1 {
		t.Errorf("backend called %d times, want 1", n)
	}

	sink.Tracks()[0].Release()
	waitFor(t, "slot release", func() bool { return c.State().Slot == ttypes.SlotIdle })

	// The caption is still on screen at the next poll and is spoken now.
	again := at(1000)
	again.Text = "second"
	snaps <- again
	waitFor(t, "second playback", func() bool { return sink.Started() == 2 })
	if reqs := b.requests(); len(reqs) != 2 || reqs[1].Text != "second" {
		t.Errorf("backend calls = %+v", reqs)
	}
}

func TestSession_BadPayloadFreesSlot(t *testing.T) {
	b := &fakeBackend{outcome: tts.Outcome{Audio: []byte("junk"), MIMEType: "video/mp4"}}
	sink := audio.NewMockSink()
	c, snaps, _ := startSession(t, b, sink)

	snap := at(0)
	snap.Text = "Hello"
	snaps <- snap

	waitFor(t, "slot release", func() bool {
		return len(b.requests()) == 1 && c.State().Slot == ttypes.SlotIdle
	})
	if sink.Started() != 0 {
		t.Error("undecodable audio reached the sink")
	}
}

func TestSession_StopsWhenSnapshotsClose(t *testing.T) {
	c, snaps, done := startSession(t, audioBackend(), audio.NewMockSink())
	close(snaps)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}

	c.mu.Lock()
	n := len(c.peers)
	c.mu.Unlock()
	if n != 0 {
		t.Errorf("%d peers still attached", n)
	}
}

func TestSession_DeliverNeverBlocks(t *testing.T) {
	c, _ := startCoordinator(t, audioBackend(), ttypes.DefaultSettings())
	s := NewSession(c, audio.NewManager(audio.NewMockSink()))

	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultSessionInbox*2; i++ {
			s.Deliver(Message{Action: ActionTTSError, Error: "x"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Deliver blocked on a full inbox")
	}
}
