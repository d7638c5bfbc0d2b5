// Package model defines the domain types for the highlight API.
package model

// Fragment is one positioned text run from a rendered page's text layer.
// GlobalIndex is the fragment's position across all currently rendered
// pages, page order first, then local order.
type Fragment struct {
	PageNumber  int    `json:"page_number"`
	LocalIndex  int    `json:"local_index"`
	GlobalIndex int    `json:"global_index"`
	Text        string `json:"text"`
}

// PageFragments is one page's text layer as sent by the viewer.
type PageFragments struct {
	PageNumber int      `json:"page_number"`
	Texts      []string `json:"texts"`
}

// TargetMetadata is carried through matching untouched.
type TargetMetadata struct {
	Title   string            `json:"title,omitempty"`
	Summary string            `json:"summary,omitempty"`
	Extra   map[string]string `json:"extra,omitempty"`
}

// HighlightTarget is a request to highlight a span of content.
type HighlightTarget struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata TargetMetadata `json:"metadata"`
}

// FragmentRange is an inclusive range of global fragment indices.
type FragmentRange struct {
	Start int `json:"start_global_index"`
	End   int `json:"end_global_index"`
}

// Span returns End - Start.
func (r FragmentRange) Span() int {
	return r.End - r.Start
}

// MatchResult is the outcome for one target. Range is nil when no
// acceptable run of fragments was found.
type MatchResult struct {
	TargetID string         `json:"target_id"`
	Range    *FragmentRange `json:"range"`
}

// FragmentHighlight tags one fragment with the target that covers it.
type FragmentHighlight struct {
	GlobalIndex int            `json:"global_index"`
	PageNumber  int            `json:"page_number"`
	LocalIndex  int            `json:"local_index"`
	TargetID    string         `json:"target_id"`
	Metadata    TargetMetadata `json:"metadata"`
}

// MatchRequest is the POST /v1/highlights/match request body.
type MatchRequest struct {
	Pages    []PageFragments   `json:"pages"`
	Targets  []HighlightTarget `json:"targets"`
	Annotate bool              `json:"annotate"`
}

// DocumentHighlightRequest is the POST /v1/documents/{id}/highlights request body.
// Targets come from ChunkIDs plus any [chunk:<id>] citations found in Answer.
type DocumentHighlightRequest struct {
	Pages    []PageFragments `json:"pages"`
	ChunkIDs []string        `json:"chunk_ids"`
	Answer   string          `json:"answer"`
	Annotate bool            `json:"annotate"`
}

// MatchResponse is the response body for match endpoints.
type MatchResponse struct {
	Matches    []MatchResult       `json:"matches"`
	Highlights []FragmentHighlight `json:"highlights,omitempty"`
	Matched    int                 `json:"matched"`
	Unmatched  int                 `json:"unmatched"`
}

// SessionCreateResponse is the POST /v1/viewer-sessions response body.
type SessionCreateResponse struct {
	SessionID string `json:"session_id"`
}

// SessionPageRequest is the PUT /v1/viewer-sessions/{id}/pages/{page} request body.
type SessionPageRequest struct {
	Texts []string `json:"texts"`
}

// SessionTargetsRequest is the PUT /v1/viewer-sessions/{id}/targets request body.
type SessionTargetsRequest struct {
	Targets []HighlightTarget `json:"targets"`
}

// SessionMatchesResponse is returned by the viewer session endpoints.
type SessionMatchesResponse struct {
	SessionID  string              `json:"session_id"`
	Generation uint64              `json:"generation"`
	Stale      bool                `json:"stale"`
	Pages      []int               `json:"pages"`
	Matches    []MatchResult       `json:"matches"`
	Highlights []FragmentHighlight `json:"highlights,omitempty"`
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ChunkTarget is a chunk row loaded for citation highlighting.
type ChunkTarget struct {
	ChunkID     string
	DocID       string
	Title       string
	HeadingPath []string
	Text        string
}
