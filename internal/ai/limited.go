package ai

import (
	"context"

	"dm-companion/pkg/retrylimit"
)

// Limited gates every call of the wrapped provider through an adaptive
// limiter. It never retries; failures go straight back to the caller.
type Limited struct {
	next Provider
	lim  *retrylimit.AdaptiveLimiter
}

func NewLimited(next Provider, lim *retrylimit.AdaptiveLimiter) *Limited {
	return &Limited{next: next, lim: lim}
}

func (l *Limited) Generate(ctx context.Context, messages []Message, cfg *GenerationConfig) (string, error) {
	if err := l.lim.Wait(ctx); err != nil {
		return "", err
	}
	out, err := l.next.Generate(ctx, messages, cfg)
	l.lim.Observe(err)
	return out, err
}
