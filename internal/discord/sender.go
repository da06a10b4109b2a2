package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"unicode/utf8"

	"dm-companion/internal/companion"

	"github.com/bwmarrin/discordgo"
)

const (
	messageLimit = 2000

	codeUnknownUser       = 10013
	codeCannotMessageUser = 50007
)

// Sender delivers DMs through a discordgo session. DM channel IDs are cached
// per user.
type Sender struct {
	dg *discordgo.Session

	mu       sync.Mutex
	channels map[string]string
}

func NewSender(dg *discordgo.Session) *Sender {
	return &Sender{dg: dg, channels: make(map[string]string)}
}

// Remember records a DM channel seen on an inbound message.
func (s *Sender) Remember(userID, channelID string) {
	if userID == "" || channelID == "" {
		return
	}
	s.mu.Lock()
	s.channels[userID] = channelID
	s.mu.Unlock()
}

func (s *Sender) channel(ctx context.Context, userID string) (string, error) {
	s.mu.Lock()
	id, ok := s.channels[userID]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	ch, err := s.dg.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err)
	}
	s.Remember(userID, ch.ID)
	return ch.ID, nil
}

func (s *Sender) Send(ctx context.Context, userID, text string) error {
	channelID, err := s.channel(ctx, userID)
	if err != nil {
		return err
	}
	for _, part := range splitMessage(text, messageLimit) {
		if _, err := s.dg.ChannelMessageSend(channelID, part, discordgo.WithContext(ctx)); err != nil {
			return classify(err)
		}
	}
	return nil
}

func (s *Sender) Typing(ctx context.Context, userID string) error {
	channelID, err := s.channel(ctx, userID)
	if err != nil {
		return err
	}
	return classify(s.dg.ChannelTyping(channelID, discordgo.WithContext(ctx)))
}

// DisplayName prefers the global display name over the username.
func (s *Sender) DisplayName(ctx context.Context, userID string) (string, error) {
	u, err := s.dg.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err)
	}
	if u.GlobalName != "" {
		return u.GlobalName, nil
	}
	return u.Username, nil
}

// classify maps Discord REST failures onto the recipient sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return err
	}
	code := 0
	if rest.Message != nil {
		code = rest.Message.Code
	}
	status := 0
	if rest.Response != nil {
		status = rest.Response.StatusCode
	}
	switch {
	case code == codeUnknownUser || status == http.StatusNotFound:
		return fmt.Errorf("%w: %w", companion.ErrRecipientNotFound, err)
	case code == codeCannotMessageUser || status == http.StatusForbidden:
		return fmt.Errorf("%w: %w", companion.ErrRecipientForbidden, err)
	}
	return err
}

// splitMessage cuts msg into pieces of at most limit bytes, preferring line
// breaks, then spaces.
func splitMessage(msg string, limit int) []string {
	var result []string
	msg = strings.TrimSpace(msg)
	for len(msg) > limit {
		cut := strings.LastIndex(msg[:limit], "\n")
		if cut <= 0 {
			cut = strings.LastIndex(msg[:limit], " ")
		}
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(msg[cut]) {
				cut--
			}
		}
		result = append(result, strings.TrimSpace(msg[:cut]))
		msg = strings.TrimSpace(msg[cut:])
	}
	if msg != "" {
		result = append(result, msg)
	}
	return result
}
