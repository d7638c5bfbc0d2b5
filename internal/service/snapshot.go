package service

import (
	"errors"
	"fmt"
	"sort"

	"github.com/jharjadi/pro-rag/highlight-api/internal/model"
)

// ErrInvalidPage is returned for non-positive or duplicate page numbers.
var ErrInvalidPage = errors.New("invalid page")

// BuildSnapshot flattens rendered pages into one fragment list, assigning
// local indices per page and global indices across pages in page order.
func BuildSnapshot(pages []model.PageFragments) ([]model.Fragment, error) {
	ordered := make([]model.PageFragments, len(pages))
	copy(ordered, pages)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].PageNumber < ordered[j].PageNumber
	})

	total := 0
	for i, p := range ordered {
		if p.PageNumber < 1 {
			return nil, fmt.Errorf("%w: page_number %d must be >= 1", ErrInvalidPage, p.PageNumber)
		}
		if i > 0 && ordered[i-1].PageNumber == p.PageNumber {
			return nil, fmt.Errorf("%w: page_number %d appears more than once", ErrInvalidPage, p.PageNumber)
		}
		total += len(p.Texts)
	}

	fragments := make([]model.Fragment, 0, total)
	for _, p := range ordered {
		for local, text := range p.Texts {
			fragments = append(fragments, model.Fragment{
				PageNumber:  p.PageNumber,
				LocalIndex:  local,
				GlobalIndex: len(fragments),
				Text:        text,
			})
		}
	}
	return fragments, nil
}

// CountFragments returns the number of fragments across pages.
func CountFragments(pages []model.PageFragments) int {
	n := 0
	for _, p := range pages {
		n += len(p.Texts)
	}
	return n
}
