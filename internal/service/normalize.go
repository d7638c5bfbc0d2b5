package service

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultStopWords are excluded from the coverage check. They still count
// toward a target's word sequence (first/last word, minimum length).
var DefaultStopWords = []string{
	"the", "and", "for", "with", "this", "that",
	"are", "was", "will", "from", "have", "has",
}

// Normalizer turns raw text into comparable words.
type Normalizer struct {
	minWordLen int
}

// NewNormalizer creates a Normalizer that drops words shorter than minWordLen runes.
func NewNormalizer(minWordLen int) *Normalizer {
	if minWordLen < 1 {
		minWordLen = 1
	}
	return &Normalizer{minWordLen: minWordLen}
}

// Words returns the normalized word sequence of text:
// NFKC fold → lowercase → non-alphanumerics to spaces → split → drop short words.
// Order and duplicates are preserved.
func (n *Normalizer) Words(text string) []string {
	if text == "" {
		return nil
	}

	// NFKC turns ligature code points (U+FB01 "ﬁ") into plain letters.
	folded := strings.ToLower(norm.NFKC.String(text))

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, folded)

	var words []string
	for _, w := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(w) >= n.minWordLen {
			words = append(words, w)
		}
	}
	return words
}

// WordSet returns the distinct normalized words of text, in first-seen order.
func (n *Normalizer) WordSet(text string) []string {
	return dedupe(n.Words(text))
}

// LooseMatch reports whether a is a substring of b or b is a substring of a.
// Empty words never match.
func LooseMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(b, a) || strings.Contains(a, b)
}

// containsLoose reports whether any of words loose-matches w.
func containsLoose(words []string, w string) bool {
	for _, candidate := range words {
		if LooseMatch(candidate, w) {
			return true
		}
	}
	return false
}

func dedupe(words []string) []string {
	if len(words) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
