package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dm-companion/internal/companion"
	"dm-companion/pkg/cmd"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

// Inbox receives plain DMs.
type Inbox interface {
	OnMessage(msg companion.Message)
}

// Bot is the Discord side of the companion: it routes DMs to the inbox and
// prefixed text to the command registry.
type Bot struct {
	dg       *discordgo.Session
	sender   *Sender
	inbox    Inbox
	commands *cmd.Registry
	prefix   string
}

// New creates the session without connecting.
func New(token, prefix string, commands *cmd.Registry) (*Bot, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsDirectMessages | discordgo.IntentsDirectMessageTyping |
		discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	b := &Bot{
		dg:       dg,
		sender:   NewSender(dg),
		commands: commands,
		prefix:   prefix,
	}
	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onMessageCreate)
	return b, nil
}

// Sender returns the outbound side of the bot.
func (b *Bot) Sender() *Sender { return b.sender }

// SetInbox must be called before Run.
func (b *Bot) SetInbox(inbox Inbox) { b.inbox = inbox }

// Run connects and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if b.inbox == nil {
		return errors.New("discord bot has no inbox")
	}
	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer b.dg.Close()

	<-ctx.Done()
	log.Info().Str("component", "discord").Msg("shutdown signal received, closing session")
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	log.Info().Str("component", "discord").Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("discord bot is running")
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || (s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID) {
		return
	}
	direct := m.GuildID == ""

	if name, args, ok := cmd.Parse(b.prefix, m.Content); ok && b.commands.Get(name) != nil {
		b.runCommand(s, m, name, args, direct)
		return
	}
	if !direct || m.Content == "" {
		return
	}

	b.sender.Remember(m.Author.ID, m.ChannelID)
	b.inbox.OnMessage(companion.Message{
		UserID:      m.Author.ID,
		ChannelID:   m.ChannelID,
		DisplayName: displayName(m.Author),
		Content:     m.Content,
		ReceivedAt:  time.Now(),
	})
}

func (b *Bot) runCommand(s *discordgo.Session, m *discordgo.MessageCreate, name string, args []string, direct bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	inv := &cmd.Invocation{
		Name:        name,
		Args:        args,
		UserID:      m.Author.ID,
		DisplayName: displayName(m.Author),
		Direct:      direct,
		Reply: func(ctx context.Context, text string) error {
			_, err := s.ChannelMessageSend(m.ChannelID, text, discordgo.WithContext(ctx))
			return err
		},
	}
	if err := b.commands.Dispatch(ctx, inv); err != nil {
		log.Error().Str("component", "discord").Str("command", name).Err(err).Msg("error running command")
	}
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}
