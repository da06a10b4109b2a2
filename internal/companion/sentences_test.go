package companion

import (
	"slices"
	"testing"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "   ", nil},
		{"single no punctuation", "hey there", []string{"hey there"}},
		{"three kinds", "Hi! How are you? I'm fine.", []string{"Hi!", "How are you?", "I'm fine."}},
		{"newline boundary", "One.\nTwo.", []string{"One.", "Two."}},
		{"no space after dot", "Version 1.2 is out. Nice", []string{"Version 1.2 is out.", "Nice"}},
		{"ellipsis", "Well... maybe. Ok", []string{"Well...", "maybe.", "Ok"}},
		{"trailing spaces", "  A. B.  ", []string{"A.", "B."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitSentences(tt.in)
			if !slices.Equal(got, tt.want) {
				t.Fatalf("SplitSentences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFirstSentences(t *testing.T) {
	s := []string{"A.", "B?", "C!", "D."}
	if got := firstSentences(s, 3); got != "A. B? C!" {
		t.Fatalf("got %q", got)
	}
	if got := firstSentences(s[:2], 3); got != "A. B?" {
		t.Fatalf("short input: got %q", got)
	}
}

func TestTrimHistory(t *testing.T) {
	var history []Turn
	for i := range 25 {
		history = append(history, Turn{Role: RoleUser, Content: string(rune('a' + i))})
	}
	got := TrimHistory(history, 10)
	if len(got) != 20 {
		t.Fatalf("len = %d, want 20", len(got))
	}
	if got[0].Content != "f" || got[19].Content != "y" {
		t.Fatalf("wrong window: first %q last %q", got[0].Content, got[19].Content)
	}

	short := history[:4]
	if got := TrimHistory(short, 10); len(got) != 4 {
		t.Fatalf("short history trimmed to %d", len(got))
	}
}

func TestClampAffinity(t *testing.T) {
	cases := map[int]int{-5: 0, 0: 0, 55: 55, 100: 100, 101: 100}
	for in, want := range cases {
		if got := ClampAffinity(in, 0, 100); got != want {
			t.Errorf("ClampAffinity(%d) = %d, want %d", in, got, want)
		}
	}
}
