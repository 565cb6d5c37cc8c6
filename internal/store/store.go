// Package store persists document chunks and their embeddings in
// PostgreSQL with the pgvector extension.
//
// One row per chunk: (document_id, chunk_id, chunk_text, embedding,
// metadata jsonb, created_at). Vector search can run database-side via the
// <=> cosine distance operator, or rows can be listed wholesale for the
// in-process scan index.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/bogachat/boga/internal/fault"
	"github.com/bogachat/boga/internal/log"
)

// searchTimeout bounds database-side vector searches so a degenerate scan
// cannot hold a request open indefinitely.
const searchTimeout = 10 * time.Second

// Querier is the subset of pgxpool.Pool the store needs.
// Consumer-defined so tests can substitute a fake.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ChunkStore reads and writes document chunk rows.
// Safe for concurrent use.
type ChunkStore struct {
	db     Querier
	logger log.Logger
}

// New creates a ChunkStore over the given querier.
func New(db Querier, logger log.Logger) *ChunkStore {
	if logger == nil {
		logger = log.NewNop()
	}
	return &ChunkStore{db: db, logger: logger}
}

// InsertChunk persists one chunk with its embedding and metadata.
func (s *ChunkStore) InsertChunk(ctx context.Context, c Chunk, embedding []float32) error {
	metadataJSON, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata for chunk %q: %w", c.ChunkID, err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO document_chunks (document_id, chunk_id, chunk_text, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5)`,
		c.DocumentID, c.ChunkID, c.Text, pgvector.NewVector(embedding), metadataJSON)
	if err != nil {
		return fmt.Errorf("inserting chunk %q: %w: %w", c.ChunkID, fault.ErrStore, err)
	}

	s.logger.Debug("inserted chunk",
		"document_id", c.DocumentID,
		"chunk_id", c.ChunkID,
		"text_length", len(c.Text))
	return nil
}

// ListAll returns every stored chunk with its embedding in text form.
// Feeds the in-process scan index; O(corpus) per call.
func (s *ChunkStore) ListAll(ctx context.Context) ([]StoredChunk, error) {
	rows, err := s.db.Query(ctx, `
		SELECT document_id, chunk_id, chunk_text, embedding::text, metadata, created_at
		FROM document_chunks`)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w: %w", fault.ErrStore, err)
	}
	defer rows.Close()

	var out []StoredChunk
	for rows.Next() {
		var (
			sc       StoredChunk
			metadata []byte
		)
		if err := rows.Scan(&sc.DocumentID, &sc.ChunkID, &sc.Text, &sc.Embedding, &metadata, &sc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w: %w", fault.ErrStore, err)
		}
		sc.Metadata = s.parseMetadata(sc.ChunkID, metadata)
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk rows: %w: %w", fault.ErrStore, err)
	}
	return out, nil
}

// SearchNative performs a database-side cosine similarity search.
//
// Similarity is computed as GREATEST(1 - (embedding <=> query), 0) so scores
// stay within [0,1] even for opposing vectors. filter, when non-empty, is a
// jsonb containment predicate: every key must match exactly. Results come
// back ordered by descending similarity, at most limit rows, all >= threshold.
func (s *ChunkStore) SearchNative(ctx context.Context, query []float32, limit int, threshold float64, filter map[string]any) ([]Match, error) {
	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	var filterJSON []byte
	if len(filter) > 0 {
		var err error
		filterJSON, err = json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("marshaling filter: %w", err)
		}
	}

	vec := pgvector.NewVector(query)
	rows, err := s.db.Query(queryCtx, `
		SELECT document_id, chunk_id, chunk_text, metadata, created_at,
		       GREATEST(1 - (embedding <=> $1), 0)::float8 AS similarity
		FROM document_chunks
		WHERE ($2::jsonb IS NULL OR metadata @> $2::jsonb)
		  AND GREATEST(1 - (embedding <=> $1), 0) >= $3
		ORDER BY embedding <=> $1
		LIMIT $4`,
		vec, filterJSON, threshold, limit)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("vector search timeout: %w: %w", fault.ErrStore, err)
		}
		return nil, fmt.Errorf("vector search: %w: %w", fault.ErrStore, err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var (
			m        Match
			metadata []byte
		)
		if err := rows.Scan(&m.DocumentID, &m.ChunkID, &m.Text, &metadata, &m.CreatedAt, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scanning search row: %w: %w", fault.ErrStore, err)
		}
		m.Metadata = s.parseMetadata(m.ChunkID, metadata)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search rows: %w: %w", fault.ErrStore, err)
	}
	return out, nil
}

// GetDocument returns all chunks of a document ordered by chunk_index.
// Returns fault.ErrNotFound when the document has no chunks.
func (s *ChunkStore) GetDocument(ctx context.Context, documentID string) ([]Chunk, error) {
	rows, err := s.db.Query(ctx, `
		SELECT document_id, chunk_id, chunk_text, metadata, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY COALESCE((metadata->>'chunk_index')::int, 0), chunk_id`,
		documentID)
	if err != nil {
		return nil, fmt.Errorf("loading document %q: %w: %w", documentID, fault.ErrStore, err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var (
			c        Chunk
			metadata []byte
		)
		if err := rows.Scan(&c.DocumentID, &c.ChunkID, &c.Text, &metadata, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning document row: %w: %w", fault.ErrStore, err)
		}
		c.Metadata = s.parseMetadata(c.ChunkID, metadata)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document rows: %w: %w", fault.ErrStore, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("document %q: %w", documentID, fault.ErrNotFound)
	}
	return out, nil
}

// DeleteDocument removes all chunks sharing documentID.
// Returns fault.ErrNotFound when no chunks existed.
func (s *ChunkStore) DeleteDocument(ctx context.Context, documentID string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("deleting document %q: %w: %w", documentID, fault.ErrStore, err)
	}
	if tag.RowsAffected() == 0 {
		return 0, fmt.Errorf("document %q: %w", documentID, fault.ErrNotFound)
	}

	s.logger.Debug("deleted document", "document_id", documentID, "chunks", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

// Count returns the total number of stored chunks.
func (s *ChunkStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting chunks: %w: %w", fault.ErrStore, err)
	}
	return count, nil
}

// parseMetadata decodes the jsonb metadata column. A row with corrupt
// metadata degrades to an empty map rather than failing the whole query.
func (s *ChunkStore) parseMetadata(chunkID string, raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var metadata map[string]any
	if err := json.Unmarshal(raw, &metadata); err != nil {
		s.logger.Warn("failed to parse chunk metadata", "chunk_id", chunkID, "error", err)
		return map[string]any{}
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return metadata
}
