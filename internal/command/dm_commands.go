package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"dm-companion/internal/companion"
	"dm-companion/pkg/cmd"
)

const (
	defaultHistoryTurns = 5
	maxHistoryChars     = 1900
)

// Locker grants exclusive access to one user's conversation.
type Locker interface {
	Exclusive(userID string, fn func()) bool
}

type HelloCommand struct{}

func (c *HelloCommand) Name() string        { return "hello" }
func (c *HelloCommand) Description() string { return "Say hello" }

func (c *HelloCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	name := inv.DisplayName
	if name == "" {
		name = "there"
	}
	return inv.Reply(ctx, fmt.Sprintf("Hi, %s! Nice to meet you!", name))
}

type HistoryCommand struct {
	Store companion.HistoryStore
}

func (c *HistoryCommand) Name() string        { return "history" }
func (c *HistoryCommand) Description() string { return "Show the most recent conversation turns" }
func (c *HistoryCommand) Usage() string       { return "history [turns]" }

func (c *HistoryCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	n := defaultHistoryTurns
	if len(inv.Args) > 0 {
		v, err := strconv.Atoi(inv.Args[0])
		if err != nil || v < 1 {
			return inv.Reply(ctx, "Please give the number of turns as a positive number, e.g. `history 5`.")
		}
		n = v
	}

	st := c.Store.Load(ctx, inv.UserID)
	if len(st.History) == 0 {
		return inv.Reply(ctx, "We haven't talked yet. Say something first!")
	}
	return inv.Reply(ctx, "```\n"+formatHistory(st.History, n)+"\n```")
}

// formatHistory renders the last n turns, dropping the oldest lines when the
// result would not fit in one message.
func formatHistory(history []companion.Turn, n int) string {
	if n < len(history) {
		history = history[len(history)-n:]
	}
	lines := make([]string, 0, len(history)+1)
	for _, t := range history {
		who := "You"
		if t.Role == companion.RoleModel {
			who = "Me"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", who, strings.ReplaceAll(t.Content, "```", "'''")))
	}
	header := fmt.Sprintf("--- last %d turns ---", len(history))
	out := strings.Join(append([]string{header}, lines...), "\n")
	for len(out) > maxHistoryChars && len(lines) > 1 {
		lines = lines[1:]
		out = strings.Join(append([]string{header}, lines...), "\n")
	}
	return out
}

type AffinityCommand struct {
	Store companion.HistoryStore
}

func (c *AffinityCommand) Name() string        { return "affinity" }
func (c *AffinityCommand) Description() string { return "Show your current affinity score" }

func (c *AffinityCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	st := c.Store.Load(ctx, inv.UserID)
	return inv.Reply(ctx, fmt.Sprintf("Our affinity is **%d** right now! 😊", st.Affinity))
}

type SetAffinityCommand struct {
	Store  companion.HistoryStore
	Locker Locker
	Bounds companion.AffinityConfig
}

func (c *SetAffinityCommand) Name() string        { return "setaffinity" }
func (c *SetAffinityCommand) Description() string { return "Set your affinity score, keeping the history" }
func (c *SetAffinityCommand) Usage() string       { return "setaffinity <score>" }

func (c *SetAffinityCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	if len(inv.Args) != 1 {
		return inv.Reply(ctx, "Please give the new score as a number, e.g. `setaffinity 75`.")
	}
	score, err := strconv.Atoi(inv.Args[0])
	if err != nil {
		return inv.Reply(ctx, "Please give the new score as a number, e.g. `setaffinity 75`.")
	}
	score = c.Bounds.Clamp(score)

	var saveErr error
	update := func() {
		st := c.Store.Load(ctx, inv.UserID)
		st.Affinity = score
		saveErr = c.Store.Save(ctx, inv.UserID, st)
	}
	if c.Locker != nil {
		if !c.Locker.Exclusive(inv.UserID, update) {
			return inv.Reply(ctx, "I'm still replying to you, try again in a moment.")
		}
	} else {
		update()
	}
	if saveErr != nil {
		_ = inv.Reply(ctx, "Something went wrong while changing the affinity. 😥")
		return fmt.Errorf("set affinity: %w", saveErr)
	}
	return inv.Reply(ctx, fmt.Sprintf("Done! Affinity is now **%d**. 😊", score))
}

type HelpCommand struct {
	Registry *cmd.Registry
	Prefix   string
}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "List available commands" }

func (c *HelpCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	var b strings.Builder
	b.WriteString("**Commands**\n")
	for _, command := range c.Registry.GetAll() {
		usage := command.Name()
		if u, ok := cmd.Root(command).(cmd.Usage); ok {
			usage = u.Usage()
		}
		fmt.Fprintf(&b, "`%s%s` %s\n", c.Prefix, usage, command.Description())
	}
	return inv.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}
