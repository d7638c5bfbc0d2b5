// Package middleware provides HTTP middleware for the highlight API.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jharjadi/pro-rag/highlight-api/internal/model"
	"github.com/jharjadi/pro-rag/highlight-api/internal/service"
)

// DevTenantHeader carries the tenant in auth-disabled mode when the viewer
// cannot put it in the query string.
const DevTenantHeader = "X-Tenant-ID"

// Identity used for every request when auth is disabled.
const (
	devUserID = "dev-user"
	devRole   = "admin"
)

type contextKey string

const (
	ContextKeyTenantID contextKey = "tenant_id"
	ContextKeyUserID   contextKey = "user_id"
	ContextKeyRole     contextKey = "role"
)

// viewer is who a match request runs as. Sessions and document lookups are
// scoped to tenantID.
type viewer struct {
	tenantID string
	userID   string
	role     string
}

func (v viewer) into(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, ContextKeyTenantID, v.tenantID)
	ctx = context.WithValue(ctx, ContextKeyUserID, v.userID)
	return context.WithValue(ctx, ContextKeyRole, v.role)
}

// TenantIDFromContext returns the tenant the request is scoped to, or "".
func TenantIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ContextKeyTenantID).(string)
	return v
}

// UserIDFromContext returns the user that appears in match log lines.
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ContextKeyUserID).(string)
	return v
}

func RoleFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ContextKeyRole).(string)
	return v
}

// AuthMiddleware resolves the viewer behind each highlight request.
//
// With auth enabled the viewer comes from a Bearer JWT signed by authSvc.
// With auth disabled every request runs as the dev user in the tenant named
// by the tenant_id query parameter or the X-Tenant-ID header, so a local PDF
// viewer can match without logging in.
func AuthMiddleware(authSvc *service.AuthService, authEnabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				v      viewer
				status int
				msg    string
			)
			if authEnabled {
				v, status, msg = tokenViewer(authSvc, r)
			} else {
				v, status, msg = devViewer(r)
			}
			if status != 0 {
				writeAuthError(w, status, msg)
				return
			}
			next.ServeHTTP(w, r.WithContext(v.into(r.Context())))
		})
	}
}

func devViewer(r *http.Request) (viewer, int, string) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		tenantID = r.Header.Get(DevTenantHeader)
	}
	if tenantID == "" {
		return viewer{}, http.StatusBadRequest, "tenant_id is required (auth disabled mode)"
	}
	return viewer{tenantID: tenantID, userID: devUserID, role: devRole}, 0, ""
}

func tokenViewer(authSvc *service.AuthService, r *http.Request) (viewer, int, string) {
	tokenStr, err := bearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return viewer{}, http.StatusUnauthorized, err.Error()
	}
	claims, err := authSvc.VerifyToken(tokenStr)
	if err != nil {
		slog.Debug("viewer token rejected", "error", err)
		return viewer{}, http.StatusUnauthorized, "invalid or expired token"
	}
	return viewer{tenantID: claims.TenantID, userID: claims.UserID, role: claims.Role}, 0, ""
}

// bearerToken extracts the token from an Authorization header value.
// Its errors are safe to return to the client.
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("missing Authorization header")
	}
	rest, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", errors.New("invalid Authorization header format (expected: Bearer <token>)")
	}
	if rest = strings.TrimSpace(rest); rest == "" {
		return "", errors.New("empty bearer token")
	}
	return rest, nil
}

// RequireRole rejects viewers whose role is not listed. It reads the role
// set by AuthMiddleware, so it must be mounted after it.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allowed[RoleFromContext(r.Context())] {
				writeAuthError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(model.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	}); err != nil {
		slog.Error("failed to write auth error", "error", err)
	}
}
