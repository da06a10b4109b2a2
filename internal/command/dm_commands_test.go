package command

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"dm-companion/internal/companion"
	"dm-companion/pkg/cmd"
)

type fakeStore struct {
	mu      sync.Mutex
	states  map[string]companion.State
	saveErr error
}

func (s *fakeStore) Load(_ context.Context, id string) companion.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[id]; ok {
		return st
	}
	return companion.State{Affinity: 30}
}

func (s *fakeStore) Save(_ context.Context, id string, st companion.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.states[id] = st
	return nil
}

func (s *fakeStore) ListUserIDs(context.Context) ([]string, error) { return nil, nil }

type busyLocker struct{ busy bool }

func (l busyLocker) Exclusive(_ string, fn func()) bool {
	if l.busy {
		return false
	}
	fn()
	return true
}

type harness struct {
	reg     *cmd.Registry
	store   *fakeStore
	replies []string
}

func newHarness(t *testing.T, locker Locker) *harness {
	t.Helper()
	h := &harness{reg: cmd.NewRegistry(), store: &fakeStore{states: map[string]companion.State{}}}
	err := RegisterDM(h.reg, Deps{Store: h.store, Locker: locker, Affinity: companion.DefaultAffinityConfig(), Prefix: "!"})
	if err != nil {
		t.Fatalf("RegisterDM: %v", err)
	}
	return h
}

func (h *harness) run(t *testing.T, text string, direct bool) error {
	t.Helper()
	name, args, ok := cmd.Parse("!", text)
	if !ok {
		t.Fatalf("not a command: %q", text)
	}
	inv := &cmd.Invocation{
		Name: name, Args: args, UserID: "u1", DisplayName: "Sam", Direct: direct,
		Reply: func(_ context.Context, text string) error {
			h.replies = append(h.replies, text)
			return nil
		},
	}
	return h.reg.Dispatch(context.Background(), inv)
}

func (h *harness) last() string {
	if len(h.replies) == 0 {
		return ""
	}
	return h.replies[len(h.replies)-1]
}

func TestHelloDMOnly(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.run(t, "!hello", false); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(h.last(), "direct messages") {
		t.Fatalf("guild reply = %q", h.last())
	}
	if err := h.run(t, "!hello", true); err != nil {
		t.Fatalf("run: %v", err)
	}
	if h.last() != "Hi, Sam! Nice to meet you!" {
		t.Fatalf("reply = %q", h.last())
	}
}

func TestHistory(t *testing.T) {
	h := newHarness(t, nil)
	h.run(t, "!history", true)
	if !strings.Contains(h.last(), "haven't talked") {
		t.Fatalf("empty history reply = %q", h.last())
	}

	h.store.states["u1"] = companion.State{History: []companion.Turn{
		{Role: companion.RoleUser, Content: "one"},
		{Role: companion.RoleModel, Content: "two"},
		{Role: companion.RoleUser, Content: "three"},
	}}
	h.run(t, "!history 2", true)
	got := h.last()
	if strings.Contains(got, "one") || !strings.Contains(got, "Me: two") || !strings.Contains(got, "You: three") {
		t.Fatalf("history reply = %q", got)
	}

	h.run(t, "!history abc", true)
	if !strings.Contains(h.last(), "positive number") {
		t.Fatalf("bad arg reply = %q", h.last())
	}
}

func TestSetAffinity(t *testing.T) {
	h := newHarness(t, busyLocker{})
	history := []companion.Turn{{Role: companion.RoleUser, Content: "hi"}}
	h.store.states["u1"] = companion.State{History: history, Affinity: 10}

	if err := h.run(t, "!setaffinity 150", true); err != nil {
		t.Fatalf("run: %v", err)
	}
	st := h.store.states["u1"]
	if st.Affinity != 100 || len(st.History) != 1 {
		t.Fatalf("state = %+v", st)
	}

	h.run(t, "!affinity", true)
	if !strings.Contains(h.last(), "**100**") {
		t.Fatalf("affinity reply = %q", h.last())
	}

	h.run(t, "!setaffinity lots", true)
	if !strings.Contains(h.last(), "as a number") {
		t.Fatalf("bad arg reply = %q", h.last())
	}
}

func TestSetAffinityBusyAndFailure(t *testing.T) {
	h := newHarness(t, busyLocker{busy: true})
	h.run(t, "!setaffinity 50", true)
	if !strings.Contains(h.last(), "try again") {
		t.Fatalf("busy reply = %q", h.last())
	}

	h = newHarness(t, nil)
	h.store.saveErr = errors.New("disk full")
	if err := h.run(t, "!setaffinity 50", true); err == nil {
		t.Fatal("expected save error")
	}
}

func TestHelpListsUsage(t *testing.T) {
	h := newHarness(t, nil)
	h.run(t, "!help", true)
	for _, want := range []string{"`!history [turns]`", "`!setaffinity <score>`", "`!hello`"} {
		if !strings.Contains(h.last(), want) {
			t.Fatalf("help missing %s: %q", want, h.last())
		}
	}
}

func TestFormatHistoryFitsOneMessage(t *testing.T) {
	var history []companion.Turn
	for range 10 {
		history = append(history, companion.Turn{Role: companion.RoleUser, Content: strings.Repeat("x", 500)})
	}
	if out := formatHistory(history, 10); len(out) > maxHistoryChars {
		t.Fatalf("len = %d", len(out))
	}
}
