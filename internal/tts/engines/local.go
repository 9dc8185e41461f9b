package engines

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/text/language"

	"github.com/dgnsrekt/caption-voice/internal/tts"
	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

// DefaultTargetLanguage is the caption language voices are matched against.
const DefaultTargetLanguage = "uk"

// VoiceTable maps the symbolic voice ids stored in the settings to engine
// voice names.
var VoiceTable = map[string]string{
	"uk-UA-PolinaNeural": "uk_UA-lada-x_low",
	"uk-UA-OstapNeural":  "uk_UA-ukrainian_tts-medium",
}

// PCMPlayer plays raw 16-bit mono PCM and returns when playback has ended.
type PCMPlayer interface {
	PlayPCM(ctx context.Context, pcm []byte, sampleRate int) error
}

// LocalClient is the on-device backend (policy B). It renders with the engine
// and plays the result itself, so Speak returns at the end of the utterance.
type LocalClient struct {
	engine ttypes.VoiceEngine
	player PCMPlayer
	table  map[string]string
	target language.Tag
	logger *log.Logger
}

// LocalConfig holds configuration for the local client.
type LocalConfig struct {
	// TargetLanguage is a BCP-47 tag (defaults to "uk")
	TargetLanguage string

	// VoiceTable overrides the default symbolic id table
	VoiceTable map[string]string
}

// NewLocalClient creates the on-device backend.
func NewLocalClient(engine ttypes.VoiceEngine, player PCMPlayer, config LocalConfig) (*LocalClient, error) {
	if engine == nil {
		return nil, tts.ErrNoLocalEngine
	}
	if player == nil {
		return nil, fmt.Errorf("local client needs a player")
	}

	lang := config.TargetLanguage
	if lang == "" {
		lang = DefaultTargetLanguage
	}
	target, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("invalid target language %q: %w", lang, err)
	}

	table := config.VoiceTable
	if table == nil {
		table = VoiceTable
	}

	return &LocalClient{
		engine: engine,
		player: player,
		table:  table,
		target: target,
		logger: log.WithPrefix("local"),
	}, nil
}

// Kind reports the local policy.
func (c *LocalClient) Kind() ttypes.BackendKind { return ttypes.BackendLocal }

// Speak renders and plays the request.
func (c *LocalClient) Speak(ctx context.Context, req ttypes.DispatchRequest) (tts.Outcome, error) {
	if err := c.Synthesize(ctx, req.Text, req.VoiceID, req.RatePercent); err != nil {
		return tts.Outcome{}, err
	}
	return tts.Outcome{Played: true}, nil
}

// Synthesize speaks text with the resolved voice and blocks until playback ends.
func (c *LocalClient) Synthesize(ctx context.Context, text, voiceID string, ratePercent int) error {
	voice, ok := c.ResolveVoice(voiceID)
	if !ok {
		return &tts.EngineError{Engine: c.engine.Name(), Cause: fmt.Errorf("no voices available")}
	}

	pcm, sampleRate, err := c.engine.Render(ctx, text, voice, ratePercent)
	if err != nil {
		return err
	}

	if err := c.player.PlayPCM(ctx, pcm, sampleRate); err != nil {
		return fmt.Errorf("%w: %v", tts.ErrPlayback, err)
	}
	return nil
}

// ResolveVoice picks the engine voice for a symbolic id: the table entry first,
// then any voice in the target language, then the first voice. Falling through
// is logged at debug level only.
func (c *LocalClient) ResolveVoice(voiceID string) (ttypes.Voice, bool) {
	voices := c.engine.Voices()
	if len(voices) == 0 {
		return ttypes.Voice{}, false
	}

	if name, ok := c.table[voiceID]; ok {
		for _, v := range voices {
			if v.Name == name {
				return v, true
			}
		}
	}
	// The symbolic id may already be an engine voice name.
	for _, v := range voices {
		if strings.EqualFold(v.Name, voiceID) {
			return v, true
		}
	}

	c.logger.Debug("Voice not found, falling back", "voice", voiceID, "code", tts.ErrorCodeVoice)

	targetBase, _ := c.target.Base()
	for _, v := range voices {
		tag, err := language.Parse(v.Language)
		if err != nil {
			continue
		}
		if base, _ := tag.Base(); base == targetBase {
			return v, true
		}
	}

	return voices[0], true
}

var _ tts.Backend = (*LocalClient)(nil)
