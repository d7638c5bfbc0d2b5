package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jharjadi/pro-rag/highlight-api/internal/config"
	"github.com/jharjadi/pro-rag/highlight-api/internal/metrics"
	authmw "github.com/jharjadi/pro-rag/highlight-api/internal/middleware"
	"github.com/jharjadi/pro-rag/highlight-api/internal/model"
	"github.com/jharjadi/pro-rag/highlight-api/internal/service"
)

// SessionHandler handles the viewer session endpoints. A session holds the
// pages a viewer has rendered and its current highlight targets; every
// change triggers a full re-match.
type SessionHandler struct {
	cfg     *config.Config
	store   *service.SessionStore
	metrics *metrics.Metrics
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(cfg *config.Config, store *service.SessionStore, m *metrics.Metrics) *SessionHandler {
	return &SessionHandler{cfg: cfg, store: store, metrics: m}
}

// Create handles POST /v1/viewer-sessions.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID := authmw.TenantIDFromContext(r.Context())
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "tenant_id is required")
		return
	}

	sess := h.store.Create(tenantID)
	writeJSON(w, http.StatusCreated, model.SessionCreateResponse{SessionID: sess.ID})
}

// Delete handles DELETE /v1/viewer-sessions/{id}.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID := authmw.TenantIDFromContext(r.Context())
	if err := h.store.Delete(tenantID, chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PutPage handles PUT /v1/viewer-sessions/{id}/pages/{page}.
// The page's fragments are replaced wholesale, as after a re-render.
func (h *SessionHandler) PutPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	page, ok := pageParam(w, r)
	if !ok {
		return
	}

	var req model.SessionPageRequest
	if !decodeJSON(w, r, h.cfg.MaxBodyBytes(), &req) {
		return
	}
	// ErrInvalidPage and ErrTooManyFragments are both client errors
	if err := sess.SetPage(page, req.Texts); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	h.recomputeAndRespond(w, r, sess)
}

// DeletePage handles DELETE /v1/viewer-sessions/{id}/pages/{page}.
func (h *SessionHandler) DeletePage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	page, ok := pageParam(w, r)
	if !ok {
		return
	}

	if !sess.RemovePage(page) {
		writeError(w, http.StatusNotFound, "not_found", "page is not rendered in this session")
		return
	}
	h.recomputeAndRespond(w, r, sess)
}

// PutTargets handles PUT /v1/viewer-sessions/{id}/targets.
func (h *SessionHandler) PutTargets(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req model.SessionTargetsRequest
	if !decodeJSON(w, r, h.cfg.MaxBodyBytes(), &req) {
		return
	}
	if msg := checkTargets(req.Targets, h.cfg.HighlightMaxTargets); msg != "" {
		writeError(w, http.StatusBadRequest, "bad_request", msg)
		return
	}

	sess.SetTargets(req.Targets)
	h.recomputeAndRespond(w, r, sess)
}

// Matches handles GET /v1/viewer-sessions/{id}/matches?annotate=true.
func (h *SessionHandler) Matches(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess.ID, sess.Matches(), wantAnnotate(r)))
}

// recomputeAndRespond runs a full pass and returns the session's latest
// results. A superseded pass is not an error: the newer update's pass
// installs its own results, and this response reports stale=true.
func (h *SessionHandler) recomputeAndRespond(w http.ResponseWriter, r *http.Request, sess *service.HighlightSession) {
	ctx := r.Context()
	requestID := chimw.GetReqID(ctx)

	start := time.Now()
	m, err := sess.Recompute(ctx)
	switch {
	case err == nil:
		elapsed := time.Since(start)
		matched := service.CountMatched(m.Results)
		h.metrics.ObservePass(metrics.SourceSession, len(m.Fragments), matched, len(m.Results)-matched, elapsed)
		emitMatchLog(metrics.SourceSession, sess.TenantID, authmw.UserIDFromContext(ctx), requestID, "", len(m.Fragments), len(m.Targets), matched, elapsed)
	case errors.Is(err, service.ErrSuperseded):
		h.metrics.PassDropped(metrics.SourceSession, "superseded")
		m = sess.Matches()
	default:
		slog.Warn("session match pass failed", "error", err, "session_id", sess.ID, "request_id", requestID)
		h.metrics.PassDropped(metrics.SourceSession, "cancelled")
		writeError(w, http.StatusServiceUnavailable, "cancelled", "request cancelled before matching finished")
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse(sess.ID, m, wantAnnotate(r)))
}

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*service.HighlightSession, bool) {
	tenantID := authmw.TenantIDFromContext(r.Context())
	sess, err := h.store.Get(tenantID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return nil, false
	}
	return sess, true
}

func pageParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil || page < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", "page must be a positive integer")
		return 0, false
	}
	return page, true
}

func wantAnnotate(r *http.Request) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get("annotate"))
	return b
}

func sessionResponse(id string, m service.SessionMatches, annotate bool) model.SessionMatchesResponse {
	resp := model.SessionMatchesResponse{
		SessionID:  id,
		Generation: m.Generation,
		Stale:      m.Stale,
		Pages:      m.Pages,
		Matches:    m.Results,
	}
	if resp.Pages == nil {
		resp.Pages = []int{}
	}
	if resp.Matches == nil {
		resp.Matches = []model.MatchResult{}
	}
	if annotate {
		resp.Highlights = service.Annotate(m.Fragments, m.Targets, m.Results)
	}
	return resp
}
