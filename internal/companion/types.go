package companion

import (
	"context"
	"strings"
	"time"
)

// Role is the author of a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one message in a user's chronological history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// State is everything persisted for a single user.
type State struct {
	History  []Turn `json:"history"`
	Affinity int    `json:"affinity"`
}

// Message is a raw inbound DM as handed over by the transport.
type Message struct {
	UserID      string
	ChannelID   string
	DisplayName string
	Content     string
	ReceivedAt  time.Time
}

// Batch is a settled burst of messages from one user.
type Batch struct {
	ID       string
	UserID   string
	Messages []Message
}

// Combined joins the buffered messages in arrival order, one per line.
func (b Batch) Combined() string {
	parts := make([]string, 0, len(b.Messages))
	for _, m := range b.Messages {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n")
}

// DisplayName returns the most recent non-empty display name in the batch.
func (b Batch) DisplayName() string {
	for i := len(b.Messages) - 1; i >= 0; i-- {
		if b.Messages[i].DisplayName != "" {
			return b.Messages[i].DisplayName
		}
	}
	return ""
}

// HistoryStore persists per-user state. Load never fails: on any internal
// error it returns defaults and logs.
type HistoryStore interface {
	Load(ctx context.Context, userID string) State
	Save(ctx context.Context, userID string, st State) error
	ListUserIDs(ctx context.Context) ([]string, error)
}

// Sender delivers outbound text to a user over the chat transport.
type Sender interface {
	Send(ctx context.Context, userID, text string) error
	Typing(ctx context.Context, userID string) error
}

// NameResolver is optionally implemented by a Sender that can look up a
// user's display name.
type NameResolver interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// TrimHistory keeps at most 2*maxTurns of the most recent turns.
func TrimHistory(history []Turn, maxTurns int) []Turn {
	limit := maxTurns * 2
	if maxTurns <= 0 || len(history) <= limit {
		return history
	}
	out := make([]Turn, limit)
	copy(out, history[len(history)-limit:])
	return out
}

// ClampAffinity bounds score to [min, max].
func ClampAffinity(score, min, max int) int {
	if score < min {
		return min
	}
	if score > max {
		return max
	}
	return score
}
