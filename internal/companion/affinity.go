package companion

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"dm-companion/internal/ai"

	"github.com/rs/zerolog/log"
)

// Sentiment labels the classifier may answer with.
const (
	SentimentPositive = "POSITIVE"
	SentimentNegative = "NEGATIVE"
	SentimentNeutral  = "NEUTRAL"
)

// AffinityConfig bounds and steps the affinity score.
type AffinityConfig struct {
	Min      int
	Max      int
	Default  int
	Increase int
	Decrease int
}

// DefaultAffinityConfig matches a 0..100 scale starting at 30.
func DefaultAffinityConfig() AffinityConfig {
	return AffinityConfig{Min: 0, Max: 100, Default: 30, Increase: 2, Decrease: 1}
}

// AffinityTracker adjusts a user's score from the sentiment of their message.
type AffinityTracker struct {
	provider ai.Provider
	cfg      AffinityConfig
}

func NewAffinityTracker(provider ai.Provider, cfg AffinityConfig) *AffinityTracker {
	return &AffinityTracker{provider: provider, cfg: cfg}
}

// Update returns the new clamped score. Classification failures leave the
// score unchanged.
func (t *AffinityTracker) Update(ctx context.Context, score int, text string) int {
	next := score
	label, err := t.classify(ctx, text)
	if err != nil {
		log.Warn().Str("component", "affinity").Err(err).Msg("sentiment unavailable, score unchanged")
	}
	switch label {
	case SentimentPositive:
		next += t.cfg.Increase
	case SentimentNegative:
		next -= t.cfg.Decrease
	}
	next = ClampAffinity(next, t.cfg.Min, t.cfg.Max)
	log.Debug().Str("component", "affinity").Str("sentiment", label).Int("from", score).Int("to", next).Msg("affinity updated")
	return next
}

func (t *AffinityTracker) classify(ctx context.Context, text string) (string, error) {
	msgs := []ai.Message{{Role: ai.RoleUser, Content: sentimentRequest(text)}}
	out, err := t.provider.Generate(ctx, msgs, sentimentConfig)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAffinityUpdate, err)
	}
	label := strings.ToUpper(strings.TrimFunc(out, func(r rune) bool {
		return !unicode.IsLetter(r)
	}))
	if label == "" {
		return "", fmt.Errorf("%w: %w", ErrAffinityUpdate, ai.ErrEmptyResponse)
	}
	return label, nil
}

// Clamp bounds score to the configured range.
func (c AffinityConfig) Clamp(score int) int {
	return ClampAffinity(score, c.Min, c.Max)
}
