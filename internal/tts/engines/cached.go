package engines

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/caption-voice/internal/cache"
	"github.com/dgnsrekt/caption-voice/internal/tts"
	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

// CachedSynthesizer serves repeated requests from an audio cache.
// Failures are never cached.
type CachedSynthesizer struct {
	next   tts.Synthesizer
	cache  ttypes.AudioCache
	logger *log.Logger
}

// NewCachedSynthesizer wraps next with c.
func NewCachedSynthesizer(next tts.Synthesizer, c ttypes.AudioCache) *CachedSynthesizer {
	return &CachedSynthesizer{next: next, cache: c, logger: log.WithPrefix("cache")}
}

// Synthesize returns cached audio when present, otherwise asks next.
func (s *CachedSynthesizer) Synthesize(ctx context.Context, text, voiceID string, ratePercent int) ([]byte, error) {
	key := cache.Key(text, voiceID, ratePercent)
	if audio, ok := s.cache.Get(key); ok {
		s.logger.Debug("Cache hit", "key", key)
		return audio, nil
	}

	audio, err := s.next.Synthesize(ctx, text, voiceID, ratePercent)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Put(key, audio); err != nil {
		s.logger.Warn("Failed to cache audio", "err", err)
	}
	return audio, nil
}

var _ tts.Synthesizer = (*CachedSynthesizer)(nil)
