package companion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// BatcherConfig controls the debounce window.
type BatcherConfig struct {
	Delay time.Duration
	// MaxMessages settles a batch immediately once it holds this many
	// messages. Zero means unbounded.
	MaxMessages int
}

// BatchHandler processes one settled batch.
type BatchHandler func(ctx context.Context, b Batch)

// debounce is the handle of one scheduled settle.
type debounce struct {
	cancel context.CancelFunc
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// Batcher coalesces bursts of messages per user. It owns the pending buffers
// and the timer table; at most one timer is live per user. Handler runs for
// the same user never overlap.
type Batcher struct {
	ctx    context.Context
	cfg    BatcherConfig
	handle BatchHandler

	mu      sync.Mutex
	buffers map[string][]Message
	timers  map[string]*debounce
	locks   map[string]*userLock

	wg sync.WaitGroup
}

// NewBatcher returns a Batcher whose timers and handler runs are bound to ctx.
// Cancelling ctx drops pending batches.
func NewBatcher(ctx context.Context, cfg BatcherConfig, handle BatchHandler) *Batcher {
	return &Batcher{
		ctx:     ctx,
		cfg:     cfg,
		handle:  handle,
		buffers: make(map[string][]Message),
		timers:  make(map[string]*debounce),
		locks:   make(map[string]*userLock),
	}
}

// OnMessage buffers msg and restarts the user's debounce window.
func (b *Batcher) OnMessage(msg Message) {
	if b.ctx.Err() != nil {
		log.Debug().Str("component", "batcher").Str("user", msg.UserID).Msg("shutting down, message dropped")
		return
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}
	uid := msg.UserID

	b.mu.Lock()
	b.buffers[uid] = append(b.buffers[uid], msg)
	buffered := len(b.buffers[uid])
	if prev, ok := b.timers[uid]; ok {
		prev.cancel()
	}
	delay := b.cfg.Delay
	if b.cfg.MaxMessages > 0 && buffered >= b.cfg.MaxMessages {
		delay = 0
	}
	ctx, cancel := context.WithCancel(b.ctx)
	t := &debounce{cancel: cancel}
	b.timers[uid] = t
	b.wg.Add(1)
	b.mu.Unlock()

	log.Debug().Str("component", "batcher").Str("user", uid).Int("buffered", buffered).Dur("delay", delay).Msg("message buffered")
	go b.wait(ctx, uid, t, delay)
}

// wait sleeps out the debounce window. A superseded task returns without
// touching any state; the newer timer owns it.
func (b *Batcher) wait(ctx context.Context, uid string, t *debounce, delay time.Duration) {
	defer b.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("component", "batcher").Str("user", uid).
				Err(fmt.Errorf("%w: %v", ErrTimerTask, r)).Msg("batch task failed")
			b.release(uid, t)
		}
	}()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	batch, ok := b.take(uid, t)
	if !ok {
		return
	}
	defer t.cancel()

	lock := b.lock(uid)
	defer b.unlock(uid, lock)

	log.Debug().Str("component", "batcher").Str("user", uid).Str("batch", batch.ID).Int("messages", len(batch.Messages)).Msg("batch settled")
	b.handle(ctx, batch)
}

// take removes the user's buffer if t still owns the timer slot.
func (b *Batcher) take(uid string, t *debounce) (Batch, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timers[uid] != t {
		return Batch{}, false
	}
	msgs := b.buffers[uid]
	delete(b.timers, uid)
	delete(b.buffers, uid)
	if len(msgs) == 0 {
		return Batch{}, false
	}
	return Batch{ID: uuid.NewString(), UserID: uid, Messages: msgs}, true
}

// release clears the user's timer and buffer if t still owns them.
func (b *Batcher) release(uid string, t *debounce) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timers[uid] != t {
		return
	}
	t.cancel()
	delete(b.timers, uid)
	delete(b.buffers, uid)
}

func (b *Batcher) lock(uid string) *userLock {
	b.mu.Lock()
	l, ok := b.locks[uid]
	if !ok {
		l = &userLock{}
		b.locks[uid] = l
	}
	l.refs++
	b.mu.Unlock()

	l.mu.Lock()
	return l
}

func (b *Batcher) unlock(uid string, l *userLock) {
	l.mu.Unlock()
	b.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(b.locks, uid)
	}
	b.mu.Unlock()
}

// Exclusive runs fn while holding the user's lock. It returns false without
// calling fn when the user has a pending batch or a handler in flight.
func (b *Batcher) Exclusive(uid string, fn func()) bool {
	b.mu.Lock()
	if _, pending := b.timers[uid]; pending {
		b.mu.Unlock()
		return false
	}
	l, ok := b.locks[uid]
	if !ok {
		l = &userLock{}
		b.locks[uid] = l
	}
	if !l.mu.TryLock() {
		b.mu.Unlock()
		return false
	}
	l.refs++
	b.mu.Unlock()

	defer b.unlock(uid, l)
	fn()
	return true
}

// Pending reports whether the user has buffered messages waiting to settle.
func (b *Batcher) Pending(uid string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.timers[uid]
	return ok
}

// Wait blocks until every scheduled task has returned.
func (b *Batcher) Wait() {
	b.wg.Wait()
}
