package companion

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

const typingRefresh = 8 * time.Second

// Courier sends text sentence by sentence with a random pause in between.
// It is shared by the reactive and proactive paths.
type Courier struct {
	sender  Sender
	paceMin time.Duration
	paceMax time.Duration

	sleep  func(time.Duration)
	jitter func() float64
}

func NewCourier(sender Sender, paceMin, paceMax time.Duration) *Courier {
	if paceMax < paceMin {
		paceMax = paceMin
	}
	return &Courier{
		sender:  sender,
		paceMin: paceMin,
		paceMax: paceMax,
		sleep:   time.Sleep,
		jitter:  rand.Float64,
	}
}

// Deliver splits text into sentences and sends each in order. It stops at
// the first failed send and returns how many sentences went out.
func (c *Courier) Deliver(ctx context.Context, userID, text string) (int, error) {
	sent := 0
	for _, sentence := range SplitSentences(text) {
		if sent > 0 {
			c.sleep(c.pause())
		}
		if err := c.sender.Send(ctx, userID, sentence); err != nil {
			return sent, fmt.Errorf("%w: %w", ErrDelivery, err)
		}
		sent++
	}
	return sent, nil
}

func (c *Courier) pause() time.Duration {
	span := c.paceMax - c.paceMin
	return c.paceMin + time.Duration(c.jitter()*float64(span))
}

// keepTyping refreshes the typing indicator until done is closed.
func (c *Courier) keepTyping(ctx context.Context, userID string, done <-chan struct{}) {
	typing := func() {
		if err := c.sender.Typing(ctx, userID); err != nil {
			log.Debug().Str("component", "courier").Str("user", userID).Err(err).Msg("typing indicator failed")
		}
	}
	typing()
	ticker := time.NewTicker(typingRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			typing()
		}
	}
}
