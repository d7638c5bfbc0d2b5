// Package service implements fragment highlight matching and the
// supporting auth, citation and session logic of the highlight API.
package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// tokenIssuer is stamped on issued tokens and required on verification.
const tokenIssuer = "highlight-api"

// AuthClaims are the JWT claims carried by viewer tokens. TenantID scopes
// every session and document lookup the viewer makes.
type AuthClaims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
	UserID   string `json:"sub"`
	Role     string `json:"role"`
}

// complete reports the first identity claim a verified token is missing.
func (c *AuthClaims) complete() error {
	switch {
	case c.TenantID == "":
		return errors.New("token missing tenant_id")
	case c.UserID == "":
		return errors.New("token missing sub (user_id)")
	case c.Role == "":
		return errors.New("token missing role")
	}
	return nil
}

// AuthService issues the viewer tokens returned by login and verifies them
// on every highlight request.
type AuthService struct {
	jwtSecret  []byte
	jwtExpiryH int
	bcryptCost int
}

// NewAuthService signs with jwtSecret (HS256). Tokens live expiryHours,
// 24 when unset.
func NewAuthService(jwtSecret string, expiryHours int) *AuthService {
	if expiryHours <= 0 {
		expiryHours = 24
	}
	return &AuthService{
		jwtSecret:  []byte(jwtSecret),
		jwtExpiryH: expiryHours,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// CheckPassword compares a login password with the stored bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// HashPassword is used by tests and seeding to produce stored hashes.
func (s *AuthService) HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// SignToken issues a viewer token stamped with tokenIssuer.
func (s *AuthService) SignToken(userID, tenantID, role string) (string, error) {
	now := time.Now().UTC()
	claims := AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.jwtExpiryH) * time.Hour)),
			Issuer:    tokenIssuer,
		},
		TenantID: tenantID,
		UserID:   userID,
		Role:     role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign JWT: %w", err)
	}
	return signed, nil
}

// VerifyToken accepts only HS256 tokens from tokenIssuer that carry an
// expiry and a full viewer identity.
func (s *AuthService) VerifyToken(tokenStr string) (*AuthClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AuthClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*AuthClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if err := claims.complete(); err != nil {
		return nil, err
	}
	return claims, nil
}
