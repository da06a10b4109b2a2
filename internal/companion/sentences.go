package companion

import (
	"regexp"
	"strings"
)

// RE2 has no lookbehind, so the boundary is matched together with its
// punctuation and the cut happens right after the punctuation byte.
var sentenceBoundary = regexp.MustCompile(`[.?!]\s+`)

// SplitSentences breaks text after '.', '?' or '!' followed by whitespace.
// Pieces are trimmed and empty pieces are dropped.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var out []string
	start := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start : loc[0]+1]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// firstSentences joins the first n sentences with a single space.
func firstSentences(sentences []string, n int) string {
	if n > len(sentences) {
		n = len(sentences)
	}
	return strings.Join(sentences[:n], " ")
}
