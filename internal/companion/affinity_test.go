package companion

import (
	"context"
	"errors"
	"testing"
)

func TestAffinityUpdate(t *testing.T) {
	tests := []struct {
		name      string
		score     int
		sentiment string
		err       error
		want      int
	}{
		{"positive", 50, "POSITIVE", nil, 52},
		{"positive clamps", 99, "POSITIVE", nil, 100},
		{"negative", 50, "NEGATIVE", nil, 49},
		{"negative clamps", 0, "NEGATIVE", nil, 0},
		{"neutral", 50, "NEUTRAL", nil, 50},
		{"noisy label", 50, " positive.\n", nil, 52},
		{"garbage", 50, "I think it's nice", nil, 50},
		{"empty", 50, "", nil, 50},
		{"call fails", 50, "", errors.New("timeout"), 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &scriptedProvider{sentiment: tt.sentiment, sentErr: tt.err}
			tr := NewAffinityTracker(p, DefaultAffinityConfig())
			if got := tr.Update(context.Background(), tt.score, "msg"); got != tt.want {
				t.Fatalf("Update(%d) = %d, want %d", tt.score, got, tt.want)
			}
		})
	}
}
