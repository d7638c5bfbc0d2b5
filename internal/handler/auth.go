package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jharjadi/pro-rag/highlight-api/internal/service"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	users   service.UserFinder
	authSvc *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(users service.UserFinder, authSvc *service.AuthService) *AuthHandler {
	return &AuthHandler{
		users:   users,
		authSvc: authSvc,
	}
}

// loginRequest is the POST /v1/auth/login request body.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse is the POST /v1/auth/login response body.
type loginResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// Login handles POST /v1/auth/login.
// Validates credentials and returns a signed JWT for the viewer.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if !decodeJSON(w, r, 1<<20, &req) {
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "email and password are required")
		return
	}

	user, err := h.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			// Don't reveal whether the email exists
			slog.Debug("login failed: user not found", "email", req.Email)
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
			return
		}
		slog.Error("login: user lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "authentication failed")
		return
	}

	if !user.IsActive {
		slog.Debug("login failed: user deactivated", "user_id", user.UserID)
		writeError(w, http.StatusUnauthorized, "unauthorized", "account is deactivated")
		return
	}

	// Users without a password hash can only be used with auth disabled
	if user.PasswordHash == "" || h.authSvc.CheckPassword(user.PasswordHash, req.Password) != nil {
		slog.Debug("login failed: bad credentials", "user_id", user.UserID)
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
		return
	}

	token, err := h.authSvc.SignToken(user.UserID, user.TenantID, user.Role)
	if err != nil {
		slog.Error("login: failed to sign token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "authentication failed")
		return
	}

	slog.Info("user logged in",
		"event", "user_login",
		"user_id", user.UserID,
		"tenant_id", user.TenantID,
		"role", user.Role,
	)

	writeJSON(w, http.StatusOK, loginResponse{
		Token:    token,
		UserID:   user.UserID,
		TenantID: user.TenantID,
		Role:     user.Role,
	})
}
