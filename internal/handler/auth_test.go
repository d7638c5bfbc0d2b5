package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jharjadi/pro-rag/highlight-api/internal/service"
)

// fakeUsers is an in-memory UserFinder keyed by email.
type fakeUsers struct {
	users map[string]*service.User
	err   error
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*service.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[email]
	if !ok {
		return nil, service.ErrUserNotFound
	}
	return u, nil
}

func newLoginFixture(t *testing.T) (*AuthHandler, *service.AuthService) {
	t.Helper()
	authSvc := service.NewAuthService("test-jwt-secret-32bytes-minimum!", 24)
	hash, err := authSvc.HashPassword("secret123")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	users := &fakeUsers{users: map[string]*service.User{
		"viewer@test.local": {
			UserID: "user-1", TenantID: "tenant-1", Role: "user",
			PasswordHash: hash, IsActive: true,
		},
		"gone@test.local": {
			UserID: "user-2", TenantID: "tenant-1", Role: "user",
			PasswordHash: hash, IsActive: false,
		},
		"nohash@test.local": {
			UserID: "user-3", TenantID: "tenant-1", Role: "admin",
			IsActive: true,
		},
	}}
	return NewAuthHandler(users, authSvc), authSvc
}

func postLogin(h *AuthHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.Login(rr, req)
	return rr
}

func TestLogin_Success(t *testing.T) {
	h, authSvc := newLoginFixture(t)

	rr := postLogin(h, `{"email":"viewer@test.local","password":"secret123"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", rr.Code, rr.Body.String())
	}

	var resp loginResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.UserID != "user-1" || resp.TenantID != "tenant-1" || resp.Role != "user" {
		t.Errorf("unexpected response: %+v", resp)
	}

	claims, err := authSvc.VerifyToken(resp.Token)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.TenantID != "tenant-1" {
		t.Errorf("tenant_id claim: got %q", claims.TenantID)
	}
}

func TestLogin_InvalidJSON(t *testing.T) {
	h, _ := newLoginFixture(t)

	rr := postLogin(h, "not json")

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestLogin_MissingFields(t *testing.T) {
	h, _ := newLoginFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing email", `{"password":"secret123"}`},
		{"missing password", `{"email":"viewer@test.local"}`},
		{"both empty", `{"email":"","password":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postLogin(h, tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rr.Code)
			}
		})
	}
}

func TestLogin_Rejected(t *testing.T) {
	h, _ := newLoginFixture(t)

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"unknown email", `{"email":"nobody@test.local","password":"secret123"}`, "invalid email or password"},
		{"wrong password", `{"email":"viewer@test.local","password":"wrong"}`, "invalid email or password"},
		{"no password hash", `{"email":"nohash@test.local","password":"secret123"}`, "invalid email or password"},
		{"deactivated", `{"email":"gone@test.local","password":"secret123"}`, "account is deactivated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postLogin(h, tt.body)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
			var body map[string]string
			json.NewDecoder(rr.Body).Decode(&body)
			if body["message"] != tt.message {
				t.Errorf("message: got %q, want %q", body["message"], tt.message)
			}
		})
	}
}

func TestLogin_LookupError(t *testing.T) {
	authSvc := service.NewAuthService("test-secret", 24)
	h := NewAuthHandler(&fakeUsers{err: errors.New("connection refused")}, authSvc)

	rr := postLogin(h, `{"email":"viewer@test.local","password":"secret123"}`)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rr.Code)
	}
}

func TestLoginResponse_Fields(t *testing.T) {
	data, err := json.Marshal(loginResponse{Token: "t", UserID: "u", TenantID: "tn", Role: "user"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]interface{}
	json.Unmarshal(data, &decoded)

	for _, field := range []string{"token", "user_id", "tenant_id", "role"} {
		if _, ok := decoded[field]; !ok {
			t.Errorf("missing required field: %s", field)
		}
	}
}
