package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	RoleSystem = "system"
	RoleUser   = "user"
	RoleModel  = "model"
)

var (
	// ErrEmptyResponse is returned when the backend answered without text.
	ErrEmptyResponse = errors.New("empty model response")
	// ErrBlocked is returned when the backend refused on content policy grounds.
	ErrBlocked = errors.New("response blocked by content policy")
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationConfig tunes a single call. A nil config means provider defaults.
type GenerationConfig struct {
	MaxOutputTokens int
	Temperature     *float64
}

// Temperature is a helper for building a GenerationConfig literal.
func Temperature(v float64) *float64 { return &v }

type Provider interface {
	Generate(ctx context.Context, messages []Message, cfg *GenerationConfig) (string, error)
}

// Options selects and configures a backend.
type Options struct {
	// Engine is "gemini", "pollinations" or "g4f[:model]".
	Engine       string
	GeminiAPIKey string
	GeminiModel  string
}

// New builds the provider named by opts.Engine.
func New(ctx context.Context, opts Options) (Provider, error) {
	engine := strings.ToLower(strings.TrimSpace(opts.Engine))
	switch {
	case engine == "gemini" || engine == "":
		return NewGeminiProvider(ctx, opts.GeminiAPIKey, opts.GeminiModel)
	case engine == "pollinations":
		return NewPollinationsProvider(), nil
	case engine == "g4f" || strings.HasPrefix(engine, "g4f:"):
		return NewG4FProvider(opts.Engine), nil
	default:
		return nil, fmt.Errorf("unsupported AI_PROVIDER: %s", opts.Engine)
	}
}

// openAIRole maps our roles onto the chat-completions vocabulary.
func openAIRole(role string) string {
	if role == RoleModel {
		return "assistant"
	}
	return role
}

func toOpenAIMessages(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, Message{Role: openAIRole(m.Role), Content: m.Content})
	}
	return out
}
