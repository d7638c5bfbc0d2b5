package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jharjadi/pro-rag/highlight-api/internal/model"
)

// ChunkLoader loads chunk text for citation highlighting.
type ChunkLoader interface {
	LoadChunks(ctx context.Context, tenantID, docID string, chunkIDs []string) ([]model.ChunkTarget, error)
}

// ChunkStore reads chunks of a document's active version from Postgres.
type ChunkStore struct {
	pool *pgxpool.Pool
}

// NewChunkStore creates a new ChunkStore.
func NewChunkStore(pool *pgxpool.Pool) *ChunkStore {
	return &ChunkStore{pool: pool}
}

// LoadChunks returns the requested chunks that belong to the active version
// of docID for tenantID, ordered by ordinal. Unknown ids are simply absent.
func (s *ChunkStore) LoadChunks(ctx context.Context, tenantID, docID string, chunkIDs []string) ([]model.ChunkTarget, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT c.chunk_id, d.doc_id, d.title, c.heading_path, c.text
		 FROM chunks c
		 JOIN document_versions dv
			ON dv.doc_version_id = c.doc_version_id AND dv.tenant_id = c.tenant_id
		 JOIN documents d
			ON d.doc_id = dv.doc_id AND d.tenant_id = dv.tenant_id
		 WHERE c.tenant_id = $1
		   AND d.doc_id = $2
		   AND dv.is_active = true
		   AND c.chunk_id = ANY($3::uuid[])
		 ORDER BY c.ordinal ASC`,
		tenantID, docID, chunkIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []model.ChunkTarget
	for rows.Next() {
		var c model.ChunkTarget
		if err := rows.Scan(&c.ChunkID, &c.DocID, &c.Title, &c.HeadingPath, &c.Text); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return chunks, nil
}
