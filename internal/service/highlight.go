package service

import (
	"context"
	"sort"
	"strings"

	"github.com/jharjadi/pro-rag/highlight-api/internal/model"
)

const (
	// DefaultMaxSpan caps end - start of a candidate range, in fragments.
	DefaultMaxSpan = 500
	// DefaultMinWordLength is the shortest normalized word that is kept.
	DefaultMinWordLength = 3

	// minTargetWords is the fewest normalized words a target needs to be anchored.
	minTargetWords = 2
)

// HighlightOptions are the matcher's tunable heuristics. Zero values fall
// back to the defaults.
type HighlightOptions struct {
	MaxSpan       int
	MinWordLength int
	StopWords     []string
}

// DefaultHighlightOptions returns the stock thresholds.
func DefaultHighlightOptions() HighlightOptions {
	return HighlightOptions{
		MaxSpan:       DefaultMaxSpan,
		MinWordLength: DefaultMinWordLength,
		StopWords:     DefaultStopWords,
	}
}

// HighlightMatcher maps highlight targets onto contiguous runs of rendered
// text fragments. It holds no match state; every call is independent.
type HighlightMatcher struct {
	maxSpan    int
	normalizer *Normalizer
	stopWords  map[string]bool
}

// NewHighlightMatcher creates a HighlightMatcher from opts.
func NewHighlightMatcher(opts HighlightOptions) *HighlightMatcher {
	if opts.MaxSpan <= 0 {
		opts.MaxSpan = DefaultMaxSpan
	}
	if opts.MinWordLength <= 0 {
		opts.MinWordLength = DefaultMinWordLength
	}
	if opts.StopWords == nil {
		opts.StopWords = DefaultStopWords
	}

	stop := make(map[string]bool, len(opts.StopWords))
	for _, w := range opts.StopWords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			stop[w] = true
		}
	}

	return &HighlightMatcher{
		maxSpan:    opts.MaxSpan,
		normalizer: NewNormalizer(opts.MinWordLength),
		stopWords:  stop,
	}
}

// MaxSpan returns the configured candidate window.
func (m *HighlightMatcher) MaxSpan() int {
	return m.maxSpan
}

// ComputeMatches returns one MatchResult per target, in target order.
// fragments are matched in GlobalIndex order whatever order they arrive in.
func (m *HighlightMatcher) ComputeMatches(fragments []model.Fragment, targets []model.HighlightTarget) []model.MatchResult {
	results, _ := m.ComputeMatchesContext(context.Background(), fragments, targets)
	return results
}

// ComputeMatchesContext is ComputeMatches with cancellation checked while
// fragments are normalized and while each target is scanned. The only error
// it returns is ctx.Err().
func (m *HighlightMatcher) ComputeMatchesContext(ctx context.Context, fragments []model.Fragment, targets []model.HighlightTarget) ([]model.MatchResult, error) {
	results := make([]model.MatchResult, 0, len(targets))
	if len(targets) == 0 {
		return results, nil
	}

	fragments = byGlobalIndex(fragments)

	fragWords := make([][]string, len(fragments))
	for i, f := range fragments {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		fragWords[i] = m.normalizer.WordSet(f.Text)
	}

	// endAt is reused by every target of the pass.
	endAt := make([]int, len(fragments)+1)
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := m.matchTarget(ctx, fragments, fragWords, endAt, t.Text)
		if err != nil {
			return nil, err
		}
		results = append(results, model.MatchResult{TargetID: t.ID, Range: r})
	}
	return results, nil
}

// ctxCheckInterval is how many fragments are processed between ctx polls.
const ctxCheckInterval = 256

// byGlobalIndex returns fragments ordered by GlobalIndex, copying only when
// the input is out of order.
func byGlobalIndex(fragments []model.Fragment) []model.Fragment {
	less := func(a, b model.Fragment) bool { return a.GlobalIndex < b.GlobalIndex }
	if sort.SliceIsSorted(fragments, func(i, j int) bool { return less(fragments[i], fragments[j]) }) {
		return fragments
	}
	sorted := make([]model.Fragment, len(fragments))
	copy(sorted, fragments)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	return sorted
}

// matchTarget finds the smallest-span range for one target in a single
// backward scan over the fragments.
//
// A candidate (s, e) needs the first word at s, the last word at e, a
// positive span within maxSpan, and every significant word somewhere in
// s..e. Coverage only grows as e moves right, so for a fixed s the best
// end is the first last-word fragment at or after both the nearest
// occurrence of each significant word and the first fragment with a larger
// global index. Among starts, the smallest span wins and the earliest start
// breaks ties.
func (m *HighlightMatcher) matchTarget(ctx context.Context, fragments []model.Fragment, fragWords [][]string, endAt []int, text string) (*model.FragmentRange, error) {
	words := m.normalizer.Words(strings.TrimSpace(text))
	if len(words) < minTargetWords {
		return nil, nil
	}
	first, last := words[0], words[len(words)-1]
	significant := m.significantWords(words)

	n := len(fragments)
	// endAt[i]: first position >= i holding the last word, or n.
	endAt[n] = n
	// nextSig[k]: first position >= s holding significant[k], or n.
	nextSig := make([]int, len(significant))
	for k := range nextSig {
		nextSig[k] = n
	}
	// after: first position past s with a larger global index, or n.
	after := n

	bestStart, bestEnd, bestSpan := -1, -1, 0
	for s := n - 1; s >= 0; s-- {
		if (n-1-s)%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if s+1 < n && fragments[s+1].GlobalIndex > fragments[s].GlobalIndex {
			after = s + 1
		}

		fw := fragWords[s]
		endAt[s] = endAt[s+1]
		if containsLoose(fw, last) {
			endAt[s] = s
		}
		for k, w := range significant {
			if containsLoose(fw, w) {
				nextSig[k] = s
			}
		}
		if !containsLoose(fw, first) {
			continue
		}

		lo := after
		for _, p := range nextSig {
			if p > lo {
				lo = p
			}
		}
		if lo >= n || endAt[lo] >= n {
			continue
		}
		e := endAt[lo]
		span := fragments[e].GlobalIndex - fragments[s].GlobalIndex
		if span > m.maxSpan {
			continue
		}
		// scanning backwards, so <= keeps the earliest start on a tie
		if bestStart < 0 || span <= bestSpan {
			bestStart, bestEnd, bestSpan = s, e, span
		}
	}

	if bestStart < 0 {
		return nil, nil
	}
	return &model.FragmentRange{
		Start: fragments[bestStart].GlobalIndex,
		End:   fragments[bestEnd].GlobalIndex,
	}, nil
}

// significantWords returns the distinct target words that are not stop words.
func (m *HighlightMatcher) significantWords(words []string) []string {
	var out []string
	for _, w := range dedupe(words) {
		if !m.stopWords[w] {
			out = append(out, w)
		}
	}
	return out
}
