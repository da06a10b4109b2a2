package command

import (
	"context"
	"time"

	"dm-companion/internal/companion"
	"dm-companion/pkg/cmd"

	"github.com/rs/zerolog/log"
)

// WithDMOnly rejects invocations that did not arrive in a private channel.
func WithDMOnly() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			if !inv.Direct {
				return inv.Reply(ctx, "This command only works in direct messages.")
			}
			return c.Run(ctx, inv)
		})
	}
}

// WithCommandLogger logs every invocation with its outcome.
func WithCommandLogger() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			start := time.Now()
			err := c.Run(ctx, inv)
			ev := log.Info()
			if err != nil {
				ev = log.Warn().Err(err)
			}
			ev.Str("component", "command").Str("command", c.Name()).Str("user", inv.UserID).
				Strs("args", inv.Args).Dur("took", time.Since(start)).Msg("command executed")
			return err
		})
	}
}

// Deps are the collaborators the DM commands need.
type Deps struct {
	Store    companion.HistoryStore
	Locker   Locker
	Affinity companion.AffinityConfig
	Prefix   string
}

// RegisterDM adds the DM command set to reg.
func RegisterDM(reg *cmd.Registry, deps Deps) error {
	commands := []cmd.Command{
		&HelloCommand{},
		&HistoryCommand{Store: deps.Store},
		&AffinityCommand{Store: deps.Store},
		&SetAffinityCommand{Store: deps.Store, Locker: deps.Locker, Bounds: deps.Affinity},
		&HelpCommand{Registry: reg, Prefix: deps.Prefix},
	}
	for _, c := range commands {
		if err := reg.Register(cmd.Apply(c, WithDMOnly(), WithCommandLogger())); err != nil {
			return err
		}
	}
	return nil
}
