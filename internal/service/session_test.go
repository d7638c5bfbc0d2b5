package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jharjadi/pro-rag/highlight-api/internal/model"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestStore(ttl time.Duration) (*SessionStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	st := NewSessionStore(defaultMatcher(), ttl, 0)
	st.now = clock.Now
	return st, clock
}

// mutatingContext runs mutate the first time the matcher polls it,
// which lands between the pass's snapshot and its install.
type mutatingContext struct {
	context.Context
	once   sync.Once
	mutate func()
}

func (c *mutatingContext) Err() error {
	c.once.Do(c.mutate)
	return c.Context.Err()
}

func TestHighlightSession_InitialState(t *testing.T) {
	st, _ := newTestStore(0)
	sess := st.Create("tenant-1")

	m := sess.Matches()
	assert.Zero(t, m.Generation)
	assert.False(t, m.Stale)
	assert.Empty(t, m.Results)
	assert.Empty(t, m.Pages)
}

func TestHighlightSession_RecomputeAfterMutations(t *testing.T) {
	st, _ := newTestStore(0)
	sess := st.Create("tenant-1")

	require.NoError(t, sess.SetPage(2, []string{"requires", "consent"}))
	require.NoError(t, sess.SetPage(1, []string{"Data", "privacy"}))
	sess.SetTargets([]model.HighlightTarget{target("a", "privacy requires consent")})

	assert.True(t, sess.Matches().Stale)

	m, err := sess.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), m.Generation)
	assert.Equal(t, []int{1, 2}, m.Pages)
	require.Len(t, m.Results, 1)
	assert.Equal(t, &model.FragmentRange{Start: 1, End: 3}, m.Results[0].Range)

	latest := sess.Matches()
	assert.False(t, latest.Stale)
	assert.Equal(t, m.Results, latest.Results)
}

func TestHighlightSession_PageRerenderShiftsIndices(t *testing.T) {
	st, _ := newTestStore(0)
	sess := st.Create("tenant-1")
	sess.SetTargets([]model.HighlightTarget{target("a", "privacy consent")})
	require.NoError(t, sess.SetPage(2, []string{"privacy", "consent"}))

	m, err := sess.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &model.FragmentRange{Start: 0, End: 1}, m.Results[0].Range)

	// page 1 rendering in front moves page 2's fragments
	require.NoError(t, sess.SetPage(1, []string{"intro", "text", "here"}))
	m, err = sess.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &model.FragmentRange{Start: 3, End: 4}, m.Results[0].Range)

	require.True(t, sess.RemovePage(1))
	m, err = sess.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &model.FragmentRange{Start: 0, End: 1}, m.Results[0].Range)
	assert.Equal(t, []int{2}, m.Pages)
}

func TestHighlightSession_SupersededPassDiscarded(t *testing.T) {
	st, _ := newTestStore(0)
	sess := st.Create("tenant-1")
	require.NoError(t, sess.SetPage(1, []string{"privacy", "consent"}))
	sess.SetTargets([]model.HighlightTarget{target("a", "privacy consent")})

	ctx := &mutatingContext{
		Context: context.Background(),
		mutate: func() {
			sess.SetTargets([]model.HighlightTarget{target("b", "consent privacy")})
		},
	}

	_, err := sess.Recompute(ctx)
	assert.ErrorIs(t, err, ErrSuperseded)

	// nothing was installed by the dropped pass
	m := sess.Matches()
	assert.True(t, m.Stale)
	assert.Empty(t, m.Results)

	// the newer mutation's pass installs its own results
	m, err = sess.Recompute(context.Background())
	require.NoError(t, err)
	require.Len(t, m.Results, 1)
	assert.Equal(t, "b", m.Results[0].TargetID)
	assert.False(t, sess.Matches().Stale)
}

func TestHighlightSession_RecomputeCancelled(t *testing.T) {
	st, _ := newTestStore(0)
	sess := st.Create("tenant-1")
	sess.SetTargets([]model.HighlightTarget{target("a", "privacy consent")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sess.Recompute(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrSuperseded)
}

func TestHighlightSession_SetPageInvalid(t *testing.T) {
	st, _ := newTestStore(0)
	sess := st.Create("tenant-1")

	assert.ErrorIs(t, sess.SetPage(0, []string{"x"}), ErrInvalidPage)
	assert.Zero(t, sess.Generation())
}

func TestHighlightSession_FragmentCap(t *testing.T) {
	st := NewSessionStore(defaultMatcher(), 0, 5)
	sess := st.Create("tenant-1")

	require.NoError(t, sess.SetPage(1, []string{"a", "b", "c"}))
	assert.ErrorIs(t, sess.SetPage(2, []string{"d", "e", "f"}), ErrTooManyFragments)
	assert.Equal(t, uint64(1), sess.Generation())

	// replacing a page counts only its new fragments
	require.NoError(t, sess.SetPage(1, []string{"a", "b", "c", "d", "e"}))
	require.True(t, sess.RemovePage(1))
	require.NoError(t, sess.SetPage(2, []string{"d", "e", "f"}))

	m, err := sess.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2}, m.Pages)
}

func TestHighlightSession_RemoveMissingPage(t *testing.T) {
	st, _ := newTestStore(0)
	sess := st.Create("tenant-1")

	assert.False(t, sess.RemovePage(5))
	assert.Zero(t, sess.Generation())
}

func TestHighlightSession_InputsCopied(t *testing.T) {
	st, _ := newTestStore(0)
	sess := st.Create("tenant-1")

	texts := []string{"privacy", "consent"}
	require.NoError(t, sess.SetPage(1, texts))
	sess.SetTargets([]model.HighlightTarget{target("a", "privacy consent")})
	texts[1] = "lorem"

	m, err := sess.Recompute(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, m.Results[0].Range)
}

func TestHighlightSession_ConcurrentMutations(t *testing.T) {
	st, _ := newTestStore(0)
	sess := st.Create("tenant-1")
	sess.SetTargets([]model.HighlightTarget{target("a", "privacy consent")})

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			_ = sess.SetPage(page, []string{"privacy", "consent"})
			_, _ = sess.Recompute(context.Background())
		}(i)
	}
	wg.Wait()

	m, err := sess.Recompute(context.Background())
	require.NoError(t, err)
	assert.Len(t, m.Pages, 8)
	assert.Equal(t, sess.Generation(), m.Generation)
}

func TestSessionStore_TenantScoping(t *testing.T) {
	st, _ := newTestStore(0)
	sess := st.Create("tenant-1")

	got, err := st.Get("tenant-1", sess.ID)
	require.NoError(t, err)
	assert.Same(t, sess, got)

	_, err = st.Get("tenant-2", sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.ErrorIs(t, st.Delete("tenant-2", sess.ID), ErrSessionNotFound)
	require.NoError(t, st.Delete("tenant-1", sess.ID))

	_, err = st.Get("tenant-1", sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Zero(t, st.Len())
}

func TestSessionStore_GetInvalidID(t *testing.T) {
	st, _ := newTestStore(0)
	st.Create("tenant-1")

	_, err := st.Get("tenant-1", "not-a-uuid")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = st.Get("tenant-1", "6a1f3c1e-8a0b-4a43-9a59-0d1ee4d3a2b1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStore_SweepIdle(t *testing.T) {
	st, clock := newTestStore(30 * time.Minute)
	idle := st.Create("tenant-1")
	active := st.Create("tenant-1")

	clock.Advance(20 * time.Minute)
	_, err := st.Get("tenant-1", active.ID)
	require.NoError(t, err)

	clock.Advance(15 * time.Minute)
	assert.Equal(t, 1, st.Sweep())
	assert.Equal(t, 1, st.Len())

	_, err = st.Get("tenant-1", idle.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = st.Get("tenant-1", active.ID)
	assert.NoError(t, err)
}

func TestSessionStore_SweepDisabled(t *testing.T) {
	st, clock := newTestStore(0)
	st.Create("tenant-1")

	clock.Advance(24 * time.Hour)
	assert.Zero(t, st.Sweep())
	assert.Equal(t, 1, st.Len())
}

func TestSessionStore_RunSweeperStops(t *testing.T) {
	st, _ := newTestStore(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		st.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
