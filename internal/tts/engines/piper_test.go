package engines

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgnsrekt/caption-voice/internal/tts"
	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

func writeVoice(t *testing.T, dir, name, config string) string {
	t.Helper()
	model := filepath.Join(dir, name+".onnx")
	if err := os.WriteFile(model, []byte("fake model"), 0o644); err != nil {
		t.Fatal(err)
	}
	if config != "" {
		if err := os.WriteFile(model+".json", []byte(config), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return model
}

func TestPiperEngine_Available(t *testing.T) {
	tests := []struct {
		name     string
		voiceDir string
		lookErr  error
		want     bool
	}{
		{"binary and dir", "/voices", nil, true},
		{"no voice dir", "", nil, false},
		{"binary missing", "/voices", errors.New("not found"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewPiperEngine(PiperConfig{VoiceDir: tt.voiceDir})
			e.lookPath = func(string) (string, error) { return "/usr/bin/piper", tt.lookErr }
			if got := e.Available(); got != tt.want {
				t.Errorf("Available() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPiperEngine_StartScansVoicesLazily(t *testing.T) {
	dir := t.TempDir()
	writeVoice(t, dir, "uk_UA-lada-x_low", `{"audio":{"sample_rate":16000},"language":{"code":"uk_UA"}}`)
	writeVoice(t, dir, "en_US-amy-medium", "")
	if err := os.WriteFile(filepath.Join(dir, "README.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := NewPiperEngine(PiperConfig{VoiceDir: dir})
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	voices, err := tts.WaitForVoices(ctx, e, 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	if len(voices) != 2 {
		t.Fatalf("voices = %+v, want 2", voices)
	}
	// Sorted by file name.
	if voices[0].Name != "en_US-amy-medium" || voices[0].Language != "en-US" {
		t.Errorf("voices[0] = %+v", voices[0])
	}
	if voices[1].Name != "uk_UA-lada-x_low" || voices[1].Language != "uk-UA" {
		t.Errorf("voices[1] = %+v", voices[1])
	}
	if rate := e.sampleRate(voices[1].Path); rate != 16000 {
		t.Errorf("sample rate = %d, want 16000", rate)
	}
	if rate := e.sampleRate(voices[0].Path); rate != DefaultPiperSampleRate {
		t.Errorf("default sample rate = %d", rate)
	}
}

func TestPiperEngine_StartRejectsMissingDir(t *testing.T) {
	e := NewPiperEngine(PiperConfig{VoiceDir: filepath.Join(t.TempDir(), "missing")})
	if err := e.Start(context.Background()); err == nil {
		t.Error("expected an error for a missing voice dir")
	}
}

func TestPiperEngine_RenderValidation(t *testing.T) {
	e := NewPiperEngine(PiperConfig{VoiceDir: t.TempDir()})

	if _, _, err := e.Render(context.Background(), "", ttypes.Voice{Path: "x.onnx"}, 100); !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("empty text err = %v", err)
	}
	_, _, err := e.Render(context.Background(), "text", ttypes.Voice{}, 100)
	if tts.CodeOf(err) != tts.ErrorCodeEngine {
		t.Errorf("missing model err = %v", err)
	}
}

func TestPiperEngine_RenderReportsEngineFailure(t *testing.T) {
	dir := t.TempDir()
	model := writeVoice(t, dir, "uk_UA-lada-x_low", "")

	e := NewPiperEngine(PiperConfig{Binary: filepath.Join(dir, "no-such-piper"), VoiceDir: dir})
	_, _, err := e.Render(context.Background(), "Привіт", ttypes.Voice{Name: "uk_UA-lada-x_low", Path: model}, 100)
	var engineErr *tts.EngineError
	if !errors.As(err, &engineErr) {
		t.Fatalf("err = %v, want *tts.EngineError", err)
	}
	if !tts.IsBackendUnavailable(err) {
		t.Error("engine failures should trigger a status refresh")
	}
}

func TestLanguageFromName(t *testing.T) {
	tests := map[string]string{
		"uk_UA-lada-x_low":   "uk-UA",
		"en_GB-alan-low":     "en-GB",
		"custom":             "custom",
		"de_DE-thorsten-low": "de-DE",
	}
	for name, want := range tests {
		if got := languageFromName(name); got != want {
			t.Errorf("languageFromName(%q) = %q, want %q", name, got, want)
		}
	}
}
