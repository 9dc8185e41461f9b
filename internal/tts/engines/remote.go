package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/caption-voice/internal/tts"
	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

const (
	// DefaultServerURL is where the synthesis service listens by default.
	DefaultServerURL = "http://localhost:3000"

	// DefaultProbeTimeout bounds the liveness probe.
	DefaultProbeTimeout = 2 * time.Second

	// DefaultSpeakTimeout bounds one synthesis request.
	DefaultSpeakTimeout = 30 * time.Second

	// maxAudioSize caps the payload read from the service.
	maxAudioSize = 20 * 1024 * 1024
)

// RemoteClient implements the networked synthesis backend.
// It issues exactly one POST per request and never retries.
type RemoteClient struct {
	baseURL      *url.URL
	httpClient   *http.Client
	probeTimeout time.Duration
	logger       *log.Logger
}

// RemoteConfig holds configuration for the remote client.
type RemoteConfig struct {
	// ServerURL is the service base URL (defaults to http://localhost:3000)
	ServerURL string

	// Timeout bounds one synthesis request (defaults to 30s)
	Timeout time.Duration

	// ProbeTimeout bounds the liveness probe (defaults to 2s)
	ProbeTimeout time.Duration

	// HTTPClient overrides the transport, mainly for tests
	HTTPClient *http.Client
}

// speakRequest is the JSON body of POST /speak.
type speakRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
	Rate  string `json:"rate"`
}

// RemoteVoice is one entry of GET /voices.
type RemoteVoice struct {
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	Language  string `json:"language"`
	Gender    string `json:"gender"`
}

// NewRemoteClient creates a client for the synthesis service.
func NewRemoteClient(config RemoteConfig) (*RemoteClient, error) {
	if config.ServerURL == "" {
		config.ServerURL = DefaultServerURL
	}
	u, err := url.Parse(config.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%s is not a supported protocol", u.Scheme)
	}

	if config.Timeout <= 0 {
		config.Timeout = DefaultSpeakTimeout
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = DefaultProbeTimeout
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &RemoteClient{
		baseURL:      u,
		httpClient:   client,
		probeTimeout: config.ProbeTimeout,
		logger:       log.WithPrefix("remote"),
	}, nil
}

// Synthesize posts text to the service and returns the audio payload.
// Transport failures become *tts.NetworkError, non-2xx replies *tts.ServerError.
func (c *RemoteClient) Synthesize(ctx context.Context, text, voiceID string, ratePercent int) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}

	rate := tts.EncodeRate(ratePercent)
	body, err := json.Marshal(speakRequest{Text: text, Voice: voiceID, Rate: rate})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("speak"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("Sending synthesis request", "voice", voiceID, "rate", rate, "chars", len([]rune(text)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, tts.NewNetworkError(err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &tts.ServerError{Status: resp.StatusCode}
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioSize+1))
	if err != nil {
		return nil, tts.NewNetworkError(err)
	}
	if len(audio) > maxAudioSize {
		return nil, fmt.Errorf("audio payload too large: more than %d bytes", maxAudioSize)
	}
	if len(audio) == 0 {
		return nil, errors.New("service returned no audio")
	}

	return audio, nil
}

// Probe checks GET / with a short timeout. Any 2xx counts as reachable.
func (c *RemoteClient) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(""), nil)
	if err != nil {
		return fmt.Errorf("build probe: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return tts.NewNetworkError(err)
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &tts.ServerError{Status: resp.StatusCode}
	}
	return nil
}

// ListVoices returns the voices the service offers.
func (c *RemoteClient) ListVoices(ctx context.Context) ([]RemoteVoice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("voices"), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, tts.NewNetworkError(err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &tts.ServerError{Status: resp.StatusCode}
	}

	var voices []RemoteVoice
	if err := json.NewDecoder(resp.Body).Decode(&voices); err != nil {
		return nil, fmt.Errorf("decode voices: %w", err)
	}
	return voices, nil
}

// URL returns the configured base URL.
func (c *RemoteClient) URL() string {
	return c.baseURL.String()
}

func (c *RemoteClient) endpoint(path string) string {
	return c.baseURL.JoinPath("/", path).String()
}

// RemoteBackend adapts a Synthesizer to the tts.Backend contract (policy A).
type RemoteBackend struct {
	synth tts.Synthesizer
}

// NewRemoteBackend wraps synth, which may be a cached client.
func NewRemoteBackend(synth tts.Synthesizer) *RemoteBackend {
	return &RemoteBackend{synth: synth}
}

// Kind reports the remote policy.
func (b *RemoteBackend) Kind() ttypes.BackendKind { return ttypes.BackendRemote }

// Speak synthesizes the request and hands back the audio for playback.
func (b *RemoteBackend) Speak(ctx context.Context, req ttypes.DispatchRequest) (tts.Outcome, error) {
	audio, err := b.synth.Synthesize(ctx, req.Text, req.VoiceID, req.RatePercent)
	if err != nil {
		return tts.Outcome{}, err
	}
	return tts.Outcome{Audio: audio, MIMEType: sniffMIME(audio)}, nil
}

// sniffMIME falls back to audio/mpeg, the service's native format.
func sniffMIME(audio []byte) string {
	ct := http.DetectContentType(audio)
	if strings.HasPrefix(ct, "audio/") {
		return ct
	}
	return "audio/mpeg"
}

var (
	_ tts.Synthesizer = (*RemoteClient)(nil)
	_ tts.Prober      = (*RemoteClient)(nil)
	_ tts.Backend     = (*RemoteBackend)(nil)
)
