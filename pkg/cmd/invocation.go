// Package cmd provides a transport-agnostic command core: a command is something
// with a name, description, and Run(ctx, invocation). The chat adapter parses
// text into an Invocation and dispatches it through a Registry.
package cmd

import "context"

// Invocation carries everything a command needs from the transport.
type Invocation struct {
	Name        string
	Args        []string
	UserID      string
	DisplayName string
	// Direct is true when the command arrived in a private channel.
	Direct bool
	// Reply answers in the channel the command came from.
	Reply func(ctx context.Context, text string) error
}

// Command is the universal contract: identity plus execution.
type Command interface {
	Name() string
	Description() string
	Run(ctx context.Context, inv *Invocation) error
}

// Usage is optionally implemented by commands that take arguments.
type Usage interface {
	Usage() string
}
