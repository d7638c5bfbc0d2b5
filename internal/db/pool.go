// Package db connects to the document store the highlight API reads from.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	maxRetries    = 10
	retryBaseWait = 1 * time.Second
	retryMaxWait  = 10 * time.Second
)

// requiredColumns lists, per table, the columns read by login and by
// document-scoped highlighting. The highlight service never writes to them.
var requiredColumns = map[string][]string{
	"users":             {"user_id", "tenant_id", "email", "role", "password_hash", "is_active"},
	"documents":         {"doc_id", "tenant_id", "title"},
	"document_versions": {"doc_version_id", "doc_id", "tenant_id", "is_active"},
	"chunks":            {"chunk_id", "doc_version_id", "tenant_id", "ordinal", "heading_path", "text"},
}

// Connect opens a pgx pool, retrying with capped exponential backoff until
// the database answers a ping or maxRetries is reached. The pool is sized
// for short read-only lookups.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	wait := retryBaseWait
	for attempt := 1; ; attempt++ {
		pool, err := pgxpool.NewWithConfig(ctx, config)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				slog.Info("database connected", "attempt", attempt)
				return pool, nil
			}
			pool.Close()
		}

		if attempt == maxRetries {
			return nil, fmt.Errorf("database connection failed after %d attempts: %w", maxRetries, err)
		}
		slog.Warn("database connection failed, retrying",
			"attempt", attempt,
			"max_retries", maxRetries,
			"wait", wait.String(),
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during DB connect: %w", ctx.Err())
		case <-time.After(wait):
		}
		wait = nextBackoff(wait)
	}
}

// nextBackoff doubles wait, capped at retryMaxWait.
func nextBackoff(wait time.Duration) time.Duration {
	wait *= 2
	if wait > retryMaxWait {
		return retryMaxWait
	}
	return wait
}

// rowsQuerier is the part of *pgxpool.Pool the schema check needs.
type rowsQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// CheckSchema verifies that every column the highlight queries read exists,
// so a schema drift fails at startup instead of on the first document
// highlight request.
func CheckSchema(ctx context.Context, q rowsQuerier) error {
	tables := make([]string, 0, len(requiredColumns))
	for t := range requiredColumns {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	for _, table := range tables {
		rows, err := q.Query(ctx,
			"SELECT column_name FROM information_schema.columns WHERE table_name = $1", table)
		if err != nil {
			return fmt.Errorf("read columns of %q: %w", table, err)
		}
		present, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("read columns of %q: %w", table, err)
		}
		if missing := missingColumns(requiredColumns[table], present); len(missing) > 0 {
			if len(present) == 0 {
				return fmt.Errorf("table %q does not exist", table)
			}
			return fmt.Errorf("table %q is missing columns %s", table, strings.Join(missing, ", "))
		}
		slog.Debug("schema check passed", "table", table)
	}
	slog.Info("document schema verified", "tables", len(tables))
	return nil
}

func missingColumns(want, present []string) []string {
	have := make(map[string]bool, len(present))
	for _, c := range present {
		have[c] = true
	}
	var missing []string
	for _, c := range want {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	return missing
}
