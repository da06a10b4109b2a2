package companion

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"dm-companion/internal/ai"
)

// scriptedProvider answers reply, summary and sentiment calls separately,
// telling them apart by generation config.
type scriptedProvider struct {
	mu sync.Mutex

	reply     string
	replyErr  error
	summary   string
	summErr   error
	sentiment string
	sentErr   error

	replyCalls     int
	summaryCalls   int
	sentimentCalls int
	lastReply      []ai.Message
}

func (p *scriptedProvider) Generate(_ context.Context, msgs []ai.Message, cfg *ai.GenerationConfig) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch cfg {
	case summaryConfig:
		p.summaryCalls++
		return p.summary, p.summErr
	case sentimentConfig:
		p.sentimentCalls++
		return p.sentiment, p.sentErr
	default:
		p.replyCalls++
		p.lastReply = slices.Clone(msgs)
		return p.reply, p.replyErr
	}
}

type memStore struct {
	mu      sync.Mutex
	states  map[string]State
	saves   int
	saveErr error
	listErr error
}

func newMemStore() *memStore {
	return &memStore{states: make(map[string]State)}
}

func (s *memStore) Load(_ context.Context, userID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[userID]
	if !ok {
		return State{Affinity: 30}
	}
	return State{History: slices.Clone(st.History), Affinity: st.Affinity}
}

func (s *memStore) Save(_ context.Context, userID string, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.states[userID] = st
	return nil
}

func (s *memStore) ListUserIDs(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

type recSender struct {
	mu      sync.Mutex
	sent    []string
	typing  int
	failAt  int // 1-based send index that fails, 0 = never
	sendErr error
	name    string
}

func (s *recSender) Send(_ context.Context, _ string, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt > 0 && len(s.sent)+1 == s.failAt {
		return s.sendErr
	}
	s.sent = append(s.sent, text)
	return nil
}

func (s *recSender) Typing(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typing++
	return nil
}

func (s *recSender) DisplayName(context.Context, string) (string, error) {
	if s.name == "" {
		return "", errors.New("unknown user")
	}
	return s.name, nil
}

func (s *recSender) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sent)
}

// instantCourier records pauses instead of sleeping.
func instantCourier(sender Sender) (*Courier, *[]time.Duration) {
	var pauses []time.Duration
	c := NewCourier(sender, time.Second, 2*time.Second)
	c.sleep = func(d time.Duration) { pauses = append(pauses, d) }
	c.jitter = func() float64 { return 0.5 }
	return c, &pauses
}
