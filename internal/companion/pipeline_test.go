package companion

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
)

func newTestPipeline(p *scriptedProvider, store *memStore, s *recSender) *Pipeline {
	c, _ := instantCourier(s)
	return NewPipeline(store, NewGenerator(p, ""), NewAffinityTracker(p, DefaultAffinityConfig()), c,
		PipelineConfig{MaxTurns: 10, SummaryThreshold: 3})
}

func testBatch(uid string, texts ...string) Batch {
	b := Batch{ID: "b-1", UserID: uid}
	for _, t := range texts {
		b.Messages = append(b.Messages, Message{UserID: uid, Content: t})
	}
	return b
}

func TestDispatchSuccess(t *testing.T) {
	p := &scriptedProvider{reply: "Hey! Nice to hear from you.", sentiment: "POSITIVE"}
	store := newMemStore()
	s := &recSender{}

	out := newTestPipeline(p, store, s).Dispatch(context.Background(), testBatch("u1", "hi", "how are you"))

	wantStages := []Stage{StageLoaded, StageGenerating, StageScoring, StagePersisting, StageSending, StageDone}
	if !slices.Equal(out.Stages, wantStages) {
		t.Fatalf("stages = %v, want %v", out.Stages, wantStages)
	}
	if out.Err != nil || !out.Persisted || out.Sent != 2 {
		t.Fatalf("outcome = %+v", out)
	}

	st := store.Load(context.Background(), "u1")
	if st.Affinity != 32 {
		t.Fatalf("affinity = %d, want 32", st.Affinity)
	}
	want := []Turn{{Role: RoleUser, Content: "hi\nhow are you"}, {Role: RoleModel, Content: "Hey! Nice to hear from you."}}
	if !slices.Equal(st.History, want) {
		t.Fatalf("history = %+v", st.History)
	}
	if !slices.Equal(s.messages(), []string{"Hey!", "Nice to hear from you."}) {
		t.Fatalf("sent = %q", s.messages())
	}
}

func TestDispatchSummarizedReplyKeepsFullInHistory(t *testing.T) {
	full := "One. Two. Three. Four. Five."
	p := &scriptedProvider{reply: full, summary: "Short. Sweet.", sentiment: "NEUTRAL"}
	store := newMemStore()
	s := &recSender{}

	out := newTestPipeline(p, store, s).Dispatch(context.Background(), testBatch("u1", "tell me a story"))

	if !slices.Contains(out.Stages, StageSummarizing) {
		t.Fatalf("stages = %v", out.Stages)
	}
	if !slices.Equal(s.messages(), []string{"Short.", "Sweet."}) {
		t.Fatalf("sent = %q", s.messages())
	}
	st := store.Load(context.Background(), "u1")
	if st.History[1].Content != full {
		t.Fatalf("persisted %q, want full reply", st.History[1].Content)
	}
}

func TestDispatchGenerationFailureSendsApology(t *testing.T) {
	p := &scriptedProvider{replyErr: errors.New("backend down"), sentiment: "POSITIVE"}
	store := newMemStore()
	s := &recSender{}

	out := newTestPipeline(p, store, s).Dispatch(context.Background(), testBatch("u1", "hello?"))

	wantStages := []Stage{StageLoaded, StageGenerating, StageError, StageSending, StageDone}
	if !slices.Equal(out.Stages, wantStages) {
		t.Fatalf("stages = %v, want %v", out.Stages, wantStages)
	}
	if !errors.Is(out.Err, ErrGeneration) {
		t.Fatalf("err = %v", out.Err)
	}
	if store.saves != 0 || out.Persisted {
		t.Fatal("failed generation must not be persisted")
	}
	if p.sentimentCalls != 0 {
		t.Fatal("scoring ran on a failed generation")
	}
	if got := strings.Join(s.messages(), " "); got != Apology {
		t.Fatalf("sent %q, want apology", got)
	}
}

func TestDispatchPersistenceFailureStillSends(t *testing.T) {
	p := &scriptedProvider{reply: "Sure thing.", sentiment: "NEUTRAL"}
	store := newMemStore()
	store.saveErr = errors.New("disk full")
	s := &recSender{}

	out := newTestPipeline(p, store, s).Dispatch(context.Background(), testBatch("u1", "ok"))

	if !errors.Is(out.Err, ErrPersistence) || out.Persisted {
		t.Fatalf("outcome = %+v", out)
	}
	if len(s.messages()) != 1 {
		t.Fatalf("sent = %q", s.messages())
	}
}

func TestDispatchDeliveryFailure(t *testing.T) {
	p := &scriptedProvider{reply: "A. B.", sentiment: "NEUTRAL"}
	s := &recSender{failAt: 1, sendErr: ErrRecipientNotFound}

	out := newTestPipeline(p, newMemStore(), s).Dispatch(context.Background(), testBatch("u1", "x"))

	if !errors.Is(out.Err, ErrRecipientNotFound) || out.Sent != 0 {
		t.Fatalf("outcome = %+v", out)
	}
	if !out.Persisted {
		t.Fatal("history should be saved before sending")
	}
}

func TestDispatchTrimsHistory(t *testing.T) {
	p := &scriptedProvider{reply: "Ok.", sentiment: "NEUTRAL"}
	store := newMemStore()
	var history []Turn
	for range 20 {
		history = append(history, Turn{Role: RoleUser, Content: "old"})
	}
	store.states["u1"] = State{History: history, Affinity: 50}

	newTestPipeline(p, store, &recSender{}).Dispatch(context.Background(), testBatch("u1", "new"))

	st := store.Load(context.Background(), "u1")
	if len(st.History) != 20 {
		t.Fatalf("history len = %d, want 20", len(st.History))
	}
	if st.History[18].Content != "new" || st.History[19].Content != "Ok." {
		t.Fatalf("tail = %+v", st.History[18:])
	}
}

func TestStageString(t *testing.T) {
	if StageSummarizing.String() != "summarizing" || Stage(42).String() != "stage(42)" {
		t.Fatal("unexpected stage names")
	}
}
