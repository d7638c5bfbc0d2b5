// Package handler implements HTTP handlers for the highlight API.
package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jharjadi/pro-rag/highlight-api/internal/config"
	"github.com/jharjadi/pro-rag/highlight-api/internal/metrics"
	authmw "github.com/jharjadi/pro-rag/highlight-api/internal/middleware"
	"github.com/jharjadi/pro-rag/highlight-api/internal/model"
	"github.com/jharjadi/pro-rag/highlight-api/internal/service"
)

// HighlightHandler handles one-shot match requests.
type HighlightHandler struct {
	cfg     *config.Config
	matcher *service.HighlightMatcher
	chunks  service.ChunkLoader
	metrics *metrics.Metrics
}

// NewHighlightHandler creates a new HighlightHandler.
func NewHighlightHandler(
	cfg *config.Config,
	matcher *service.HighlightMatcher,
	chunks service.ChunkLoader,
	m *metrics.Metrics,
) *HighlightHandler {
	return &HighlightHandler{
		cfg:     cfg,
		matcher: matcher,
		chunks:  chunks,
		metrics: m,
	}
}

// Match handles POST /v1/highlights/match:
// validate → build fragment snapshot → match every target → optional annotate → response
func (h *HighlightHandler) Match(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chimw.GetReqID(ctx)

	tenantID := authmw.TenantIDFromContext(ctx)
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "tenant_id is required")
		return
	}

	var req model.MatchRequest
	if !decodeJSON(w, r, h.cfg.MaxBodyBytes(), &req) {
		return
	}

	if msg := checkPages(req.Pages, h.cfg.HighlightMaxFragments); msg != "" {
		writeError(w, http.StatusBadRequest, "bad_request", msg)
		return
	}
	if msg := checkTargets(req.Targets, h.cfg.HighlightMaxTargets); msg != "" {
		writeError(w, http.StatusBadRequest, "bad_request", msg)
		return
	}

	fragments, err := service.BuildSnapshot(req.Pages)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	h.matchAndRespond(w, r, matchPass{
		source:    metrics.SourceRequest,
		tenantID:  tenantID,
		requestID: requestID,
		fragments: fragments,
		targets:   req.Targets,
		annotate:  req.Annotate,
	})
}

// DocumentHighlights handles POST /v1/documents/{id}/highlights.
// Targets are the document's chunks named in chunk_ids or cited in answer.
func (h *HighlightHandler) DocumentHighlights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chimw.GetReqID(ctx)

	tenantID := authmw.TenantIDFromContext(ctx)
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "tenant_id is required")
		return
	}

	docID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(docID); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "document id must be a UUID")
		return
	}

	var req model.DocumentHighlightRequest
	if !decodeJSON(w, r, h.cfg.MaxBodyBytes(), &req) {
		return
	}

	if msg := checkPages(req.Pages, h.cfg.HighlightMaxFragments); msg != "" {
		writeError(w, http.StatusBadRequest, "bad_request", msg)
		return
	}

	ids, invalid := service.MergeChunkIDs(req.ChunkIDs, service.ParseCitedChunkIDs(req.Answer))
	if invalid != "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("chunk_id %q is not a UUID", invalid))
		return
	}
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "chunk_ids or an answer with [chunk:<id>] citations is required")
		return
	}
	if len(ids) > h.cfg.HighlightMaxTargets {
		writeError(w, http.StatusBadRequest, "bad_request",
			fmt.Sprintf("too many chunks: %d (max %d)", len(ids), h.cfg.HighlightMaxTargets))
		return
	}

	fragments, err := service.BuildSnapshot(req.Pages)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	chunks, err := h.chunks.LoadChunks(ctx, tenantID, docID, ids)
	if err != nil {
		slog.Error("failed to load chunks", "error", err, "doc_id", docID, "request_id", requestID)
		writeError(w, http.StatusInternalServerError, "internal", "failed to load chunks")
		return
	}

	targets := service.ChunkTargets(ids, chunks)
	if len(targets) == 0 {
		writeError(w, http.StatusNotFound, "not_found", "none of the requested chunks belong to the active version of this document")
		return
	}

	h.matchAndRespond(w, r, matchPass{
		source:    metrics.SourceDocument,
		tenantID:  tenantID,
		requestID: requestID,
		docID:     docID,
		fragments: fragments,
		targets:   targets,
		annotate:  req.Annotate,
	})
}

// matchPass carries one request's inputs through matching and logging.
type matchPass struct {
	source    string
	tenantID  string
	requestID string
	docID     string
	fragments []model.Fragment
	targets   []model.HighlightTarget
	annotate  bool
}

func (h *HighlightHandler) matchAndRespond(w http.ResponseWriter, r *http.Request, p matchPass) {
	start := time.Now()
	results, err := h.matcher.ComputeMatchesContext(r.Context(), p.fragments, p.targets)
	if err != nil {
		slog.Warn("match pass cancelled", "error", err, "request_id", p.requestID)
		h.metrics.PassDropped(p.source, "cancelled")
		writeError(w, http.StatusServiceUnavailable, "cancelled", "request cancelled before matching finished")
		return
	}
	elapsed := time.Since(start)

	matched := service.CountMatched(results)
	resp := model.MatchResponse{
		Matches:   results,
		Matched:   matched,
		Unmatched: len(results) - matched,
	}
	if p.annotate {
		resp.Highlights = service.Annotate(p.fragments, p.targets, results)
	}

	h.metrics.ObservePass(p.source, len(p.fragments), resp.Matched, resp.Unmatched, elapsed)
	emitMatchLog(p.source, p.tenantID, authmw.UserIDFromContext(r.Context()), p.requestID, p.docID, len(p.fragments), len(p.targets), resp.Matched, elapsed)

	writeJSON(w, http.StatusOK, resp)
}

// emitMatchLog writes the structured per-pass log line.
func emitMatchLog(source, tenantID, userID, requestID, docID string, fragments, targets, matched int, elapsed time.Duration) {
	attrs := []any{
		"event", "highlight_match",
		"source", source,
		"tenant_id", tenantID,
		"user_id", userID,
		"request_id", requestID,
		"num_fragments", fragments,
		"num_targets", targets,
		"num_matched", matched,
		"num_unmatched", targets - matched,
		"latency_ms", elapsed.Milliseconds(),
	}
	if docID != "" {
		attrs = append(attrs, "doc_id", docID)
	}
	slog.Info("highlight match", attrs...)
}

// checkPages returns a validation message, or "" if pages are acceptable.
func checkPages(pages []model.PageFragments, maxFragments int) string {
	if n := service.CountFragments(pages); maxFragments > 0 && n > maxFragments {
		return fmt.Sprintf("too many fragments: %d (max %d)", n, maxFragments)
	}
	return ""
}

// checkTargets returns a validation message, or "" if targets are acceptable.
// Empty target text is allowed; it simply never matches.
func checkTargets(targets []model.HighlightTarget, maxTargets int) string {
	if maxTargets > 0 && len(targets) > maxTargets {
		return fmt.Sprintf("too many targets: %d (max %d)", len(targets), maxTargets)
	}
	seen := make(map[string]bool, len(targets))
	for i, t := range targets {
		id := strings.TrimSpace(t.ID)
		if id == "" {
			return fmt.Sprintf("targets[%d].id is required", i)
		}
		if seen[id] {
			return fmt.Sprintf("duplicate target id %q", id)
		}
		seen[id] = true
	}
	return ""
}

// decodeJSON decodes a size-capped JSON body, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v any) bool {
	body := r.Body
	if maxBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := json.NewDecoder(body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

// writeError writes a standard error response.
func writeError(w http.ResponseWriter, status int, errCode, message string) {
	writeJSON(w, status, model.ErrorResponse{
		Error:   errCode,
		Message: message,
	})
}
