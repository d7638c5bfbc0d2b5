package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestNextBackoff(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{retryBaseWait, 2 * time.Second},
		{2 * time.Second, 4 * time.Second},
		{4 * time.Second, 8 * time.Second},
		{8 * time.Second, retryMaxWait},
		{retryMaxWait, retryMaxWait},
	}
	for _, tt := range tests {
		if got := nextBackoff(tt.in); got != tt.want {
			t.Errorf("nextBackoff(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

// columnRows serves one column_name per row.
type columnRows struct {
	cols []string
	i    int
}

func (r *columnRows) Close()                                       {}
func (r *columnRows) Err() error                                   { return nil }
func (r *columnRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *columnRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *columnRows) Values() ([]any, error)                       { return []any{r.cols[r.i-1]}, nil }
func (r *columnRows) RawValues() [][]byte                          { return [][]byte{[]byte(r.cols[r.i-1])} }
func (r *columnRows) Conn() *pgx.Conn                              { return nil }

func (r *columnRows) Next() bool {
	if r.i >= len(r.cols) {
		return false
	}
	r.i++
	return true
}

func (r *columnRows) Scan(dest ...any) error {
	if len(dest) != 1 {
		return fmt.Errorf("expected 1 dest, got %d", len(dest))
	}
	p, ok := dest[0].(*string)
	if !ok {
		return fmt.Errorf("unexpected dest %T", dest[0])
	}
	*p = r.cols[r.i-1]
	return nil
}

// fakeCatalog answers information_schema lookups from a table→columns map.
type fakeCatalog struct {
	tables map[string][]string
	err    error
}

func (f *fakeCatalog) Query(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &columnRows{cols: f.tables[args[0].(string)]}, nil
}

func fullCatalog() map[string][]string {
	tables := make(map[string][]string, len(requiredColumns))
	for t, cols := range requiredColumns {
		tables[t] = append([]string{"created_at"}, cols...)
	}
	return tables
}

func TestCheckSchema_Complete(t *testing.T) {
	if err := CheckSchema(context.Background(), &fakeCatalog{tables: fullCatalog()}); err != nil {
		t.Fatalf("expected schema to pass, got %v", err)
	}
}

func TestCheckSchema_Failures(t *testing.T) {
	noChunks := fullCatalog()
	delete(noChunks, "chunks")

	noOrdinal := fullCatalog()
	noOrdinal["chunks"] = []string{"chunk_id", "doc_version_id", "tenant_id", "heading_path", "text"}

	tests := []struct {
		name    string
		catalog *fakeCatalog
		want    string
	}{
		{"missing table", &fakeCatalog{tables: noChunks}, `table "chunks" does not exist`},
		{"missing column", &fakeCatalog{tables: noOrdinal}, `table "chunks" is missing columns ordinal`},
		{"query error", &fakeCatalog{err: errors.New("connection reset")}, "connection reset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSchema(context.Background(), tt.catalog)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %v, want error containing %q", err, tt.want)
			}
		})
	}
}
