package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jharjadi/pro-rag/highlight-api/internal/model"
)

var (
	// ErrSuperseded is returned by Recompute when inputs changed while the
	// pass was running. The pass's results are discarded.
	ErrSuperseded = errors.New("match pass superseded by a newer update")

	// ErrSessionNotFound is returned for unknown, expired or foreign sessions.
	ErrSessionNotFound = errors.New("viewer session not found")

	// ErrTooManyFragments is returned when a page would push a session past
	// its total fragment cap.
	ErrTooManyFragments = errors.New("too many fragments")
)

// SessionMatches is the latest installed match pass of a session.
type SessionMatches struct {
	Generation uint64
	Stale      bool // inputs changed since this pass
	Pages      []int
	Fragments  []model.Fragment
	Targets    []model.HighlightTarget
	Results    []model.MatchResult
}

// HighlightSession tracks the rendered pages and highlight targets of one
// viewer. Every mutation bumps the generation; a match pass only installs
// its results if no mutation happened while it ran.
type HighlightSession struct {
	ID       string
	TenantID string

	matcher      *HighlightMatcher
	maxFragments int // across all pages; 0 = unlimited
	now          func() time.Time

	mu         sync.Mutex
	pages      map[int][]string
	targets    []model.HighlightTarget
	generation uint64
	lastUsed   time.Time

	installed SessionMatches
}

func newHighlightSession(id, tenantID string, matcher *HighlightMatcher, maxFragments int, now func() time.Time) *HighlightSession {
	return &HighlightSession{
		ID:           id,
		TenantID:     tenantID,
		matcher:      matcher,
		maxFragments: maxFragments,
		now:          now,
		pages:        make(map[int][]string),
		lastUsed:     now(),
	}
}

// SetPage replaces the fragments of one page, as after a re-render.
func (s *HighlightSession) SetPage(pageNumber int, texts []string) error {
	if pageNumber < 1 {
		return fmt.Errorf("%w: page_number %d must be >= 1", ErrInvalidPage, pageNumber)
	}
	cp := make([]string, len(texts))
	copy(cp, texts)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = s.now()

	if s.maxFragments > 0 {
		total := len(cp)
		for n, texts := range s.pages {
			if n != pageNumber {
				total += len(texts)
			}
		}
		if total > s.maxFragments {
			return fmt.Errorf("%w: session would hold %d (max %d)", ErrTooManyFragments, total, s.maxFragments)
		}
	}

	s.pages[pageNumber] = cp
	s.generation++
	return nil
}

// RemovePage drops a page. It reports whether the page was present.
func (s *HighlightSession) RemovePage(pageNumber int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = s.now()
	if _, ok := s.pages[pageNumber]; !ok {
		return false
	}
	delete(s.pages, pageNumber)
	s.generation++
	return true
}

// SetTargets replaces the highlight targets.
func (s *HighlightSession) SetTargets(targets []model.HighlightTarget) {
	cp := make([]model.HighlightTarget, len(targets))
	copy(cp, targets)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets = cp
	s.generation++
	s.lastUsed = s.now()
}

// Recompute runs a full match pass over the current inputs. If the inputs
// change before the pass finishes, its results are dropped and
// ErrSuperseded is returned; the newer mutation's pass wins.
func (s *HighlightSession) Recompute(ctx context.Context) (SessionMatches, error) {
	s.mu.Lock()
	gen := s.generation
	pages := make([]model.PageFragments, 0, len(s.pages))
	for n, texts := range s.pages {
		pages = append(pages, model.PageFragments{PageNumber: n, Texts: texts})
	}
	targets := s.targets
	s.mu.Unlock()

	fragments, err := BuildSnapshot(pages)
	if err != nil {
		return SessionMatches{}, fmt.Errorf("build snapshot: %w", err)
	}

	results, err := s.matcher.ComputeMatchesContext(ctx, fragments, targets)
	if err != nil {
		return SessionMatches{}, fmt.Errorf("compute matches: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		slog.Debug("match pass superseded",
			"session_id", s.ID,
			"pass_generation", gen,
			"current_generation", s.generation,
		)
		return SessionMatches{}, ErrSuperseded
	}

	s.installed = SessionMatches{
		Generation: gen,
		Pages:      pageNumbers(pages),
		Fragments:  fragments,
		Targets:    targets,
		Results:    results,
	}
	return s.installed, nil
}

// Matches returns the latest installed pass.
func (s *HighlightSession) Matches() SessionMatches {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = s.now()
	m := s.installed
	m.Stale = m.Generation != s.generation
	return m
}

// Generation returns the current input generation.
func (s *HighlightSession) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *HighlightSession) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *HighlightSession) touch() {
	s.mu.Lock()
	s.lastUsed = s.now()
	s.mu.Unlock()
}

func pageNumbers(pages []model.PageFragments) []int {
	out := make([]int, 0, len(pages))
	for _, p := range pages {
		out = append(out, p.PageNumber)
	}
	sort.Ints(out)
	return out
}

// SessionStore keeps viewer sessions in memory, scoped by tenant.
type SessionStore struct {
	matcher      *HighlightMatcher
	idleTTL      time.Duration
	maxFragments int
	now          func() time.Time

	mu       sync.RWMutex
	sessions map[string]*HighlightSession
}

// NewSessionStore creates a SessionStore whose sessions expire after idleTTL
// without use and hold at most maxFragments fragments across their pages.
// idleTTL <= 0 disables expiry; maxFragments <= 0 disables the cap.
func NewSessionStore(matcher *HighlightMatcher, idleTTL time.Duration, maxFragments int) *SessionStore {
	return &SessionStore{
		matcher:      matcher,
		idleTTL:      idleTTL,
		maxFragments: maxFragments,
		now:          time.Now,
		sessions:     make(map[string]*HighlightSession),
	}
}

// Create starts a new empty session for tenantID.
func (st *SessionStore) Create(tenantID string) *HighlightSession {
	sess := newHighlightSession(uuid.NewString(), tenantID, st.matcher, st.maxFragments, st.now)

	st.mu.Lock()
	st.sessions[sess.ID] = sess
	st.mu.Unlock()

	slog.Info("viewer session created", "session_id", sess.ID, "tenant_id", tenantID)
	return sess
}

// Get returns the session if it exists and belongs to tenantID.
func (st *SessionStore) Get(tenantID, id string) (*HighlightSession, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrSessionNotFound
	}

	st.mu.RLock()
	sess, ok := st.sessions[id]
	st.mu.RUnlock()

	if !ok || sess.TenantID != tenantID {
		return nil, ErrSessionNotFound
	}
	sess.touch()
	return sess, nil
}

// Delete removes a session.
func (st *SessionStore) Delete(tenantID, id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, ok := st.sessions[id]
	if !ok || sess.TenantID != tenantID {
		return ErrSessionNotFound
	}
	delete(st.sessions, id)
	return nil
}

// Len returns the number of live sessions.
func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep removes sessions idle for longer than the TTL and returns how many
// were removed.
func (st *SessionStore) Sweep() int {
	if st.idleTTL <= 0 {
		return 0
	}
	cutoff := st.now().Add(-st.idleTTL)

	st.mu.Lock()
	defer st.mu.Unlock()

	removed := 0
	for id, sess := range st.sessions {
		if sess.idleSince().Before(cutoff) {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (st *SessionStore) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 || st.idleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := st.Sweep(); n > 0 {
				slog.Info("expired viewer sessions removed",
					"count", n,
					"remaining", st.Len(),
					"idle_ttl", st.idleTTL.String(),
				)
			}
		}
	}
}
