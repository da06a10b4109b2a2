package companion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"dm-companion/internal/ai"
)

func TestRespondShortReplyIsNotSummarized(t *testing.T) {
	p := &scriptedProvider{reply: "One. Two! Three?"}
	g := NewGenerator(p, "")

	res, err := g.Respond(context.Background(), Request{Prompt: "hi", Affinity: 40, Threshold: 3})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if p.summaryCalls != 0 {
		t.Fatalf("summary called %d times", p.summaryCalls)
	}
	if res.Final != res.Full || res.Summarized {
		t.Fatalf("final %q differs from full %q", res.Final, res.Full)
	}
}

func TestRespondLongReplyUsesSummary(t *testing.T) {
	p := &scriptedProvider{reply: "One. Two. Three. Four.", summary: "Short version."}
	g := NewGenerator(p, "persona")

	res, err := g.Respond(context.Background(), Request{Prompt: "hi", Threshold: 3})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if res.Final != "Short version." || !res.Summarized {
		t.Fatalf("final = %q", res.Final)
	}
	if res.Full != "One. Two. Three. Four." {
		t.Fatalf("full = %q", res.Full)
	}
}

func TestRespondSummaryFailureTruncates(t *testing.T) {
	for name, p := range map[string]*scriptedProvider{
		"error": {reply: "One. Two. Three. Four.", summErr: errors.New("quota")},
		"empty": {reply: "One. Two. Three. Four.", summary: "  "},
	} {
		t.Run(name, func(t *testing.T) {
			res, err := NewGenerator(p, "").Respond(context.Background(), Request{Prompt: "hi", Threshold: 3})
			if err != nil {
				t.Fatalf("Respond: %v", err)
			}
			if res.Final != "One. Two. Three." {
				t.Fatalf("final = %q", res.Final)
			}
		})
	}
}

func TestRespondGenerationFailure(t *testing.T) {
	for name, p := range map[string]*scriptedProvider{
		"error":   {replyErr: errors.New("boom")},
		"empty":   {reply: ""},
		"blocked": {replyErr: ai.ErrBlocked},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewGenerator(p, "").Respond(context.Background(), Request{Prompt: "hi", Threshold: 3})
			if !errors.Is(err, ErrGeneration) {
				t.Fatalf("err = %v, want ErrGeneration", err)
			}
		})
	}
}

func TestBuildContextOrder(t *testing.T) {
	g := NewGenerator(&scriptedProvider{}, "be nice")
	msgs := g.buildContext(Request{
		History:  []Turn{{Role: RoleUser, Content: "a"}, {Role: RoleModel, Content: "b"}},
		Prompt:   "c",
		Affinity: 42,
	})
	if len(msgs) != 5 {
		t.Fatalf("len = %d, want 5", len(msgs))
	}
	if msgs[0].Role != ai.RoleSystem || msgs[0].Content != "be nice" {
		t.Fatalf("first message = %+v", msgs[0])
	}
	if msgs[2].Role != ai.RoleModel || msgs[3].Content != "c" {
		t.Fatalf("unexpected layout: %+v", msgs)
	}
	if !strings.Contains(msgs[4].Content, "42%") {
		t.Fatalf("annotation missing affinity: %q", msgs[4].Content)
	}
}
