package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/caption-voice/internal/tts"
	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

const (
	// DefaultPiperBinary is looked up on PATH.
	DefaultPiperBinary = "piper"

	// DefaultPiperSampleRate is used when a voice config omits it.
	DefaultPiperSampleRate = 22050

	// DefaultRenderTimeout bounds one Piper invocation.
	DefaultRenderTimeout = 10 * time.Second

	maxPCMSize = 10 * 1024 * 1024
)

// PiperEngine runs Piper as a fresh subprocess per utterance.
// Voices are the *.onnx models found in the voice directory; the list is
// filled in the background after Start.
type PiperEngine struct {
	binary   string
	voiceDir string
	timeout  time.Duration
	logger   *log.Logger

	mu          sync.RWMutex
	voices      []ttypes.Voice
	sampleRates map[string]int
	started     bool

	// lookPath is swapped in tests.
	lookPath func(string) (string, error)
}

// PiperConfig holds configuration for the Piper engine.
type PiperConfig struct {
	// Binary is the piper executable (defaults to "piper" on PATH)
	Binary string

	// VoiceDir contains <name>.onnx models with <name>.onnx.json configs
	VoiceDir string

	// Timeout bounds one synthesis (defaults to 10s)
	Timeout time.Duration
}

// piperVoiceConfig is the subset of <model>.onnx.json we read.
type piperVoiceConfig struct {
	Audio struct {
		SampleRate int `json:"sample_rate"`
	} `json:"audio"`
	Language struct {
		Code string `json:"code"`
	} `json:"language"`
	Espeak struct {
		Voice string `json:"voice"`
	} `json:"espeak"`
}

// NewPiperEngine creates a Piper engine. It does not touch the filesystem
// until Start is called.
func NewPiperEngine(config PiperConfig) *PiperEngine {
	if config.Binary == "" {
		config.Binary = DefaultPiperBinary
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultRenderTimeout
	}
	return &PiperEngine{
		binary:      config.Binary,
		voiceDir:    config.VoiceDir,
		timeout:     config.Timeout,
		logger:      log.WithPrefix("piper"),
		sampleRates: make(map[string]int),
		lookPath:    exec.LookPath,
	}
}

// Name returns "piper".
func (e *PiperEngine) Name() string { return "piper" }

// Available reports whether the binary is on PATH and a voice dir is set.
func (e *PiperEngine) Available() bool {
	if e.voiceDir == "" {
		return false
	}
	_, err := e.lookPath(e.binary)
	return err == nil
}

// Start scans the voice directory in the background.
func (e *PiperEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.mu.Unlock()

	info, err := os.Stat(e.voiceDir)
	if err != nil {
		return fmt.Errorf("voice directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("voice directory: %s is not a directory", e.voiceDir)
	}

	go func() {
		voices, rates := scanPiperVoices(ctx, e.voiceDir, e.logger)

		e.mu.Lock()
		e.voices = voices
		e.sampleRates = rates
		e.mu.Unlock()

		e.logger.Debug("Voice scan finished", "dir", e.voiceDir, "voices", len(voices))
	}()
	return nil
}

// Voices returns the voices discovered so far.
func (e *PiperEngine) Voices() []ttypes.Voice {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]ttypes.Voice, len(e.voices))
	copy(out, e.voices)
	return out
}

// Render synthesizes text to raw 16-bit mono PCM.
// Stdin is attached before the process starts so Piper never sees an empty pipe.
func (e *PiperEngine) Render(ctx context.Context, text string, voice ttypes.Voice, ratePercent int) ([]byte, int, error) {
	if strings.TrimSpace(text) == "" {
		return nil, 0, tts.ErrEmptyText
	}
	if voice.Path == "" {
		return nil, 0, &tts.EngineError{Engine: e.Name(), Cause: errors.New("voice has no model path")}
	}

	args := []string{
		"--model", voice.Path,
		"--output-raw",
		"--length_scale", tts.LengthScale(ratePercent),
	}
	if cfg := voice.Path + ".json"; fileExists(cfg) {
		args = append(args, "--config", cfg)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.binary, args...)
	cmd.Stdin = strings.NewReader(text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- cmd.Run()
	}()

	select {
	case err := <-done:
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, &tts.EngineError{Engine: e.Name(), Cause: fmt.Errorf("synthesis timeout: %w", ctx.Err())}
			}
			return nil, 0, &tts.EngineError{
				Engine: e.Name(),
				Cause:  fmt.Errorf("%w, stderr: %s", err, strings.TrimSpace(stderr.String())),
			}
		}
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = cmd.Process.Signal(os.Interrupt)
			select {
			case <-done:
			case <-time.After(100 * time.Millisecond):
				_ = cmd.Process.Kill()
				<-done
			}
		}
		return nil, 0, &tts.EngineError{Engine: e.Name(), Cause: fmt.Errorf("synthesis timeout: %w", ctx.Err())}
	}

	pcm := stdout.Bytes()
	if len(pcm) == 0 {
		return nil, 0, &tts.EngineError{
			Engine: e.Name(),
			Cause:  fmt.Errorf("no audio output, stderr: %s", strings.TrimSpace(stderr.String())),
		}
	}
	if len(pcm) > maxPCMSize {
		return nil, 0, &tts.EngineError{Engine: e.Name(), Cause: fmt.Errorf("output too large: %d bytes", len(pcm))}
	}

	return pcm, e.sampleRate(voice.Path), nil
}

func (e *PiperEngine) sampleRate(modelPath string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if rate, ok := e.sampleRates[modelPath]; ok && rate > 0 {
		return rate
	}
	return DefaultPiperSampleRate
}

// scanPiperVoices lists models in dir, sorted by name.
func scanPiperVoices(ctx context.Context, dir string, logger *log.Logger) ([]ttypes.Voice, map[string]int) {
	rates := make(map[string]int)
	matches, err := filepath.Glob(filepath.Join(dir, "*.onnx"))
	if err != nil {
		logger.Warn("Voice scan failed", "dir", dir, "err", err)
		return nil, rates
	}
	sort.Strings(matches)

	voices := make([]ttypes.Voice, 0, len(matches))
	for _, model := range matches {
		if ctx.Err() != nil {
			break
		}

		name := strings.TrimSuffix(filepath.Base(model), ".onnx")
		voice := ttypes.Voice{Name: name, Path: model, Language: languageFromName(name)}

		if raw, err := os.ReadFile(model + ".json"); err == nil {
			var cfg piperVoiceConfig
			if err := json.Unmarshal(raw, &cfg); err != nil {
				logger.Debug("Ignoring unreadable voice config", "model", model, "err", err)
			} else {
				if code := cfg.Language.Code; code != "" {
					voice.Language = normalizeLanguage(code)
				} else if cfg.Espeak.Voice != "" {
					voice.Language = normalizeLanguage(cfg.Espeak.Voice)
				}
				rates[model] = cfg.Audio.SampleRate
			}
		}
		voices = append(voices, voice)
	}
	return voices, rates
}

// languageFromName reads the uk_UA prefix of names like uk_UA-lada-x_low.
func languageFromName(name string) string {
	prefix, _, _ := strings.Cut(name, "-")
	return normalizeLanguage(prefix)
}

func normalizeLanguage(code string) string {
	return strings.ReplaceAll(code, "_", "-")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

var _ ttypes.VoiceEngine = (*PiperEngine)(nil)
