package service

import (
	"github.com/jharjadi/pro-rag/highlight-api/internal/model"
)

// Annotate tags every fragment inside each matched range with the target's
// id and metadata. Targets are applied in order and overlapping ranges are
// not deconflicted: the last applied target wins on a shared fragment.
// The result is ordered by global index.
func Annotate(fragments []model.Fragment, targets []model.HighlightTarget, results []model.MatchResult) []model.FragmentHighlight {
	if len(fragments) == 0 || len(results) == 0 {
		return nil
	}

	byID := make(map[string]model.HighlightTarget, len(targets))
	for _, t := range targets {
		byID[t.ID] = t
	}

	// fragments are addressed by global index; build a position lookup in
	// case the slice does not start at zero.
	pos := make(map[int]int, len(fragments))
	for i, f := range fragments {
		pos[f.GlobalIndex] = i
	}

	tagged := make([]*model.FragmentHighlight, len(fragments))
	for _, r := range results {
		if r.Range == nil {
			continue
		}
		t := byID[r.TargetID]
		for g := r.Range.Start; g <= r.Range.End; g++ {
			i, ok := pos[g]
			if !ok {
				continue
			}
			f := fragments[i]
			tagged[i] = &model.FragmentHighlight{
				GlobalIndex: f.GlobalIndex,
				PageNumber:  f.PageNumber,
				LocalIndex:  f.LocalIndex,
				TargetID:    r.TargetID,
				Metadata:    t.Metadata,
			}
		}
	}

	var out []model.FragmentHighlight
	for _, h := range tagged {
		if h != nil {
			out = append(out, *h)
		}
	}
	return out
}

// CountMatched returns how many results carry a range.
func CountMatched(results []model.MatchResult) int {
	n := 0
	for _, r := range results {
		if r.Range != nil {
			n++
		}
	}
	return n
}
