package service

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jharjadi/pro-rag/highlight-api/internal/model"
)

// citationRegex matches [chunk:<CHUNK_ID>] patterns in answer text.
// Chunk IDs are UUIDs: 8-4-4-4-12 hex characters.
var citationRegex = regexp.MustCompile(`\[chunk:([0-9a-fA-F-]{36})\]`)

// ParseCitedChunkIDs extracts the chunk ids cited in an answer, deduplicated,
// in order of first appearance. Ids that are not valid UUIDs are skipped.
func ParseCitedChunkIDs(answer string) []string {
	matches := citationRegex.FindAllStringSubmatch(answer, -1)
	if len(matches) == 0 {
		return []string{}
	}

	seen := make(map[string]bool)
	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		id, err := uuid.Parse(match[1])
		if err != nil {
			slog.Debug("malformed citation skipped", "chunk_id", match[1])
			continue
		}
		key := id.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		ids = append(ids, key)
	}
	return ids
}

// MergeChunkIDs validates explicit chunk ids and appends the cited ones,
// dropping duplicates. It returns the first invalid explicit id, if any.
func MergeChunkIDs(explicit []string, cited []string) ([]string, string) {
	seen := make(map[string]bool, len(explicit)+len(cited))
	out := make([]string, 0, len(explicit)+len(cited))
	for _, raw := range explicit {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, raw
		}
		key := id.String()
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	for _, id := range cited {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, ""
}

// ChunkTargets turns loaded chunks into highlight targets, in the order of
// ids. Requested ids with no loaded chunk are dropped with a warning, the
// same way hallucinated citations are.
func ChunkTargets(ids []string, chunks []model.ChunkTarget) []model.HighlightTarget {
	byID := make(map[string]model.ChunkTarget, len(chunks))
	for _, c := range chunks {
		byID[strings.ToLower(c.ChunkID)] = c
	}

	targets := make([]model.HighlightTarget, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[strings.ToLower(id)]
		if !ok {
			slog.Warn("cited chunk not found in document",
				"chunk_id", id,
				"loaded_chunk_count", len(chunks),
			)
			continue
		}
		heading := strings.Join(c.HeadingPath, " > ")
		targets = append(targets, model.HighlightTarget{
			ID:   c.ChunkID,
			Text: c.Text,
			Metadata: model.TargetMetadata{
				Title:   c.Title,
				Summary: heading,
				Extra:   map[string]string{"doc_id": c.DocID},
			},
		})
	}
	return targets
}
