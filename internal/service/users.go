package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUserNotFound is returned when no user has the given email.
var ErrUserNotFound = errors.New("user not found")

// User is the subset of the users row needed to log in.
type User struct {
	UserID       string
	TenantID     string
	Role         string
	PasswordHash string
	IsActive     bool
}

// UserFinder looks users up by email.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// UserStore reads users from Postgres.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new UserStore.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// FindByEmail returns the user with email, or ErrUserNotFound.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, tenant_id, role, password_hash, is_active
		 FROM users
		 WHERE email = $1
		 LIMIT 1`,
		email,
	).Scan(&u.UserID, &u.TenantID, &u.Role, &u.PasswordHash, &u.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}
