package companion

import (
	"context"
	"fmt"
	"strings"

	"dm-companion/internal/ai"

	"github.com/rs/zerolog/log"
)

var (
	// summaryConfig keeps rewrites short.
	summaryConfig = &ai.GenerationConfig{MaxOutputTokens: 200}
	// sentimentConfig asks for a single label.
	sentimentConfig = &ai.GenerationConfig{MaxOutputTokens: 50, Temperature: ai.Temperature(0.2)}
)

// Request is the input of one generation round.
type Request struct {
	History  []Turn
	Prompt   string
	Affinity int
	// Threshold is the sentence count above which the reply is summarized.
	Threshold int
}

// Result holds the persisted full reply and the text actually sent.
type Result struct {
	Full       string
	Final      string
	Summarized bool
}

// Generator drives the generate-then-maybe-summarize protocol.
type Generator struct {
	provider ai.Provider
	persona  string
	// replyConfig is nil: full replies use provider defaults with no length cap.
	replyConfig *ai.GenerationConfig
}

func NewGenerator(provider ai.Provider, persona string) *Generator {
	if strings.TrimSpace(persona) == "" {
		persona = DefaultPersona
	}
	return &Generator{provider: provider, persona: strings.TrimSpace(persona)}
}

// Respond runs the full protocol. The only error it returns wraps ErrGeneration.
func (g *Generator) Respond(ctx context.Context, req Request) (Result, error) {
	full, err := g.generate(ctx, g.buildContext(req))
	if err != nil {
		return Result{}, err
	}
	final, summarized := g.finalize(ctx, full, req.Threshold)
	return Result{Full: full, Final: final, Summarized: summarized}, nil
}

// buildContext lays out persona, history, the pending turn and the
// affinity annotation, in that order.
func (g *Generator) buildContext(req Request) []ai.Message {
	msgs := make([]ai.Message, 0, len(req.History)+3)
	msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: g.persona})
	for _, t := range req.History {
		role := ai.RoleUser
		if t.Role == RoleModel {
			role = ai.RoleModel
		}
		msgs = append(msgs, ai.Message{Role: role, Content: t.Content})
	}
	msgs = append(msgs,
		ai.Message{Role: ai.RoleUser, Content: req.Prompt},
		ai.Message{Role: ai.RoleUser, Content: affinityContext(req.Affinity)},
	)
	return msgs
}

func (g *Generator) generate(ctx context.Context, msgs []ai.Message) (string, error) {
	out, err := g.provider.Generate(ctx, msgs, g.replyConfig)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: %w", ErrGeneration, ai.ErrEmptyResponse)
	}
	return out, nil
}

// needsSummary reports whether full has more than threshold sentences.
func needsSummary(full string, threshold int) bool {
	return len(SplitSentences(full)) > threshold
}

// finalize returns the text to send for full. Long replies are summarized;
// if that fails the first threshold sentences are used.
func (g *Generator) finalize(ctx context.Context, full string, threshold int) (string, bool) {
	if !needsSummary(full, threshold) {
		return full, false
	}
	return g.shorten(ctx, full, threshold), true
}

func (g *Generator) shorten(ctx context.Context, full string, threshold int) string {
	summary, err := g.summarize(ctx, full)
	if err == nil {
		return summary
	}
	log.Warn().Str("component", "generator").Err(err).Int("keep", threshold).Msg("summary unavailable, truncating reply")
	return firstSentences(SplitSentences(full), threshold)
}

// summarize never fails hard; any error wraps ErrSummarization.
func (g *Generator) summarize(ctx context.Context, text string) (string, error) {
	msgs := []ai.Message{{Role: ai.RoleUser, Content: summaryRequest(text)}}
	out, err := g.provider.Generate(ctx, msgs, summaryConfig)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSummarization, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: %w", ErrSummarization, ai.ErrEmptyResponse)
	}
	return out, nil
}
