package companion

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
)

// ProactiveConfig controls the unsolicited message loop.
type ProactiveConfig struct {
	Interval         time.Duration
	MaxTurns         int
	SummaryThreshold int
}

// Proactive periodically messages a random known user.
type Proactive struct {
	store   HistoryStore
	gen     *Generator
	courier *Courier
	batcher *Batcher
	names   NameResolver
	cfg     ProactiveConfig

	pick func(n int) int
}

// NewProactive wires the trigger. batcher and names may be nil.
func NewProactive(store HistoryStore, gen *Generator, courier *Courier, batcher *Batcher, names NameResolver, cfg ProactiveConfig) *Proactive {
	if cfg.SummaryThreshold <= 0 {
		cfg.SummaryThreshold = 5
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Minute
	}
	return &Proactive{
		store:   store,
		gen:     gen,
		courier: courier,
		batcher: batcher,
		names:   names,
		cfg:     cfg,
		pick:    rand.Intn,
	}
}

// Run fires RunOnce every Interval until ctx is cancelled. Cycle errors are
// logged and never stop the loop.
func (p *Proactive) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	log.Info().Str("component", "proactive").Dur("interval", p.cfg.Interval).Msg("proactive loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("component", "proactive").Msg("proactive loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if uid, err := p.RunOnce(ctx); err != nil {
				log.Warn().Str("component", "proactive").Str("user", uid).Err(err).Msg("proactive cycle failed")
			}
		}
	}
}

// RunOnce picks one user and messages them. It returns the chosen user ID,
// or "" when no user is known.
func (p *Proactive) RunOnce(ctx context.Context) (string, error) {
	ids, err := p.store.ListUserIDs(ctx)
	if err != nil {
		return "", fmt.Errorf("list users: %w", err)
	}
	if len(ids) == 0 {
		log.Debug().Str("component", "proactive").Msg("no known users")
		return "", nil
	}
	uid := ids[p.pick(len(ids))]

	if p.batcher == nil {
		return uid, p.message(ctx, uid)
	}
	var runErr error
	if !p.batcher.Exclusive(uid, func() { runErr = p.message(ctx, uid) }) {
		log.Debug().Str("component", "proactive").Str("user", uid).Msg("user busy, skipping cycle")
		return uid, ErrUserBusy
	}
	return uid, runErr
}

func (p *Proactive) message(ctx context.Context, uid string) error {
	logger := log.With().Str("component", "proactive").Str("user", uid).Logger()

	st := p.store.Load(ctx, uid)
	req := Request{
		History:   st.History,
		Prompt:    proactiveRequest(p.displayName(ctx, uid)),
		Affinity:  st.Affinity,
		Threshold: p.cfg.SummaryThreshold,
	}
	res, err := p.gen.Respond(ctx, req)
	if err != nil {
		text := ProactiveFallbacks[p.pick(len(ProactiveFallbacks))]
		logger.Warn().Err(err).Msg("proactive generation failed, sending canned message")
		if n, derr := p.courier.Deliver(ctx, uid, text); derr != nil {
			logDeliveryFailure(logger, derr, n)
			return derr
		}
		return nil
	}

	if n, err := p.courier.Deliver(ctx, uid, res.Final); err != nil {
		logDeliveryFailure(logger, err, n)
		return err
	}

	history := append(slices.Clone(st.History), Turn{Role: RoleModel, Content: res.Full})
	next := State{History: TrimHistory(history, p.cfg.MaxTurns), Affinity: st.Affinity}
	if err := p.store.Save(ctx, uid, next); err != nil {
		err = fmt.Errorf("%w: %w", ErrPersistence, err)
		logger.Error().Err(err).Msg("could not save proactive turn")
		return err
	}
	logger.Info().Bool("summarized", res.Summarized).Msg("proactive message sent")
	return nil
}

func (p *Proactive) displayName(ctx context.Context, uid string) string {
	if p.names == nil {
		return ""
	}
	name, err := p.names.DisplayName(ctx, uid)
	if err != nil {
		log.Debug().Str("component", "proactive").Str("user", uid).Err(err).Msg("display name unavailable")
		return ""
	}
	return name
}
