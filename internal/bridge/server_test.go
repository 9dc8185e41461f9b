package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/dgnsrekt/caption-voice/internal/pipeline"
	"github.com/dgnsrekt/caption-voice/internal/tts"
	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

type stubBackend struct{}

func (stubBackend) Kind() ttypes.BackendKind { return ttypes.BackendRemote }

func (stubBackend) Speak(context.Context, ttypes.DispatchRequest) (tts.Outcome, error) {
	return tts.Outcome{Audio: []byte("ID3"), MIMEType: "audio/mpeg"}, nil
}

func setup(t *testing.T, settings ttypes.Settings, cfg Config) (*pipeline.Coordinator, *httptest.Server) {
	t.Helper()
	coord, err := pipeline.NewCoordinator(pipeline.Config{Backend: stubBackend{}, Settings: settings})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go coord.Run(ctx)

	srv := httptest.NewServer(New(coord, cfg).Handler())
	t.Cleanup(srv.Close)
	return coord, srv
}

func dial(t *testing.T, srv *httptest.Server) (*websocket.Conn, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	// every client is greeted with the current settings
	var hello pipeline.Message
	if err := wsjson.Read(ctx, conn, &hello); err != nil {
		t.Fatal(err)
	}
	if hello.Action != pipeline.ActionSettingsUpdated || hello.Settings == nil {
		t.Fatalf("greeting = %+v", hello)
	}
	return conn, ctx
}

func read(t *testing.T, ctx context.Context, conn *websocket.Conn) pipeline.Message {
	t.Helper()
	var msg pipeline.Message
	if err := wsjson.Read(ctx, conn, &msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestBridge_SpeakRoundTrip(t *testing.T) {
	coord, srv := setup(t, ttypes.DefaultSettings(), Config{})
	conn, ctx := dial(t, srv)

	if err := wsjson.Write(ctx, conn, pipeline.Message{Action: pipeline.ActionSpeak, Text: "Привіт"}); err != nil {
		t.Fatal(err)
	}
	msg := read(t, ctx, conn)
	if msg.Action != pipeline.ActionPlayAudio || !strings.HasPrefix(msg.AudioData, "data:audio/mpeg;base64,") {
		t.Fatalf("got %+v, want playAudio", msg)
	}
	if coord.State().Slot != ttypes.SlotInFlight {
		t.Error("slot released before playback ended")
	}

	if err := wsjson.Write(ctx, conn, pipeline.Message{Action: pipeline.ActionPlaybackEnded}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for coord.State().Slot != ttypes.SlotIdle {
		if time.Now().After(deadline) {
			t.Fatal("slot never released")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBridge_DisabledAck(t *testing.T) {
	s := ttypes.DefaultSettings()
	s.Enabled = false
	_, srv := setup(t, s, Config{})
	conn, ctx := dial(t, srv)

	if err := wsjson.Write(ctx, conn, pipeline.Message{Action: pipeline.ActionSpeak, Text: "Hello"}); err != nil {
		t.Fatal(err)
	}
	msg := read(t, ctx, conn)
	if !msg.IsAck() || *msg.Success || msg.Reason != pipeline.ReasonDisabled {
		t.Errorf("got %+v, want disabled ack", msg)
	}
}

func TestBridge_RateLimit(t *testing.T) {
	_, srv := setup(t, ttypes.DefaultSettings(), Config{RateLimit: 0.001, Burst: 1})
	conn, ctx := dial(t, srv)

	// the first message spends the burst; the second is refused
	if err := wsjson.Write(ctx, conn, pipeline.Message{Action: pipeline.ActionPlaybackEnded}); err != nil {
		t.Fatal(err)
	}
	if err := wsjson.Write(ctx, conn, pipeline.Message{Action: pipeline.ActionSpeak, Text: "Hello"}); err != nil {
		t.Fatal(err)
	}
	msg := read(t, ctx, conn)
	if !msg.IsAck() || msg.Reason != ReasonRateLimited {
		t.Errorf("got %+v, want rate-limited ack", msg)
	}
}

func TestBridge_SettingsBroadcastAndSave(t *testing.T) {
	saved := make(chan ttypes.Settings, 1)
	coord, srv := setup(t, ttypes.DefaultSettings(), Config{
		SaveSettings: func(s ttypes.Settings) error {
			saved <- s
			return nil
		},
	})
	sender, ctx := dial(t, srv)
	listener, _ := dial(t, srv)

	next := ttypes.Settings{Enabled: true, VoiceID: "uk-UA-OstapNeural", SpeedPercent: 150}
	if err := wsjson.Write(ctx, sender, pipeline.Message{Action: pipeline.ActionSettingsUpdated, Settings: &next}); err != nil {
		t.Fatal(err)
	}

	msg := read(t, ctx, listener)
	if msg.Action != pipeline.ActionSettingsUpdated || *msg.Settings != next {
		t.Errorf("listener got %+v", msg)
	}
	select {
	case got := <-saved:
		if got != next {
			t.Errorf("saved %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("settings not persisted")
	}
	if coord.Settings() != next {
		t.Errorf("coordinator settings = %+v", coord.Settings())
	}
}

func TestBridge_Status(t *testing.T) {
	_, srv := setup(t, ttypes.DefaultSettings(), Config{
		Status: func() (ttypes.ServiceStatus, string) { return ttypes.StatusServerError, "backend-unreachable" },
	})

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("CORS header = %q", got)
	}
	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "server-error" || body.Backend != "remote" || body.Slot != "idle" {
		t.Errorf("status = %+v", body)
	}
}

func TestBridge_Preflight(t *testing.T) {
	_, srv := setup(t, ttypes.DefaultSettings(), Config{})

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/status", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("preflight status = %d", resp.StatusCode)
	}
}
