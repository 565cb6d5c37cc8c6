package store

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bogachat/boga/internal/fault"
	"github.com/bogachat/boga/internal/log"
	"github.com/bogachat/boga/internal/testutil"
)

// embeddingDim matches the vector(768) column in the chunk schema.
const embeddingDim = 768

// axisVector returns a unit vector along one axis. Axis vectors are mutually
// orthogonal, so cosine similarity between distinct ones is exactly 0 and
// against themselves exactly 1, which makes search assertions deterministic.
func axisVector(axis int) []float32 {
	v := make([]float32, embeddingDim)
	v[axis] = 1
	return v
}

// blendVector returns an unnormalized mix of two axes. Cosine similarity
// against either axis is 1/sqrt(2) ~= 0.707.
func blendVector(a, b int) []float32 {
	v := make([]float32, embeddingDim)
	v[a] = 1
	v[b] = 1
	return v
}

func insertTestChunk(t *testing.T, s *ChunkStore, documentID, text string, embedding []float32, metadata map[string]any) Chunk {
	t.Helper()
	c := Chunk{
		DocumentID: documentID,
		ChunkID:    uuid.NewString(),
		Text:       text,
		Metadata:   metadata,
	}
	require.NoError(t, s.InsertChunk(context.Background(), c, embedding))
	return c
}

func TestChunkStore_InsertAndGetDocument_Integration(t *testing.T) {
	testutil.SkipWithoutDocker(t)

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	s := New(db.Pool, log.NewNop())
	ctx := context.Background()

	docID := uuid.NewString()
	// Insert out of order; GetDocument must sort by chunk_index.
	insertTestChunk(t, s, docID, "second part", axisVector(1), map[string]any{
		"chunk_index": 1, "total_chunks": 3, "title": "Handbook",
	})
	insertTestChunk(t, s, docID, "third part", axisVector(2), map[string]any{
		"chunk_index": 2, "total_chunks": 3, "title": "Handbook",
	})
	insertTestChunk(t, s, docID, "first part", axisVector(0), map[string]any{
		"chunk_index": 0, "total_chunks": 3, "title": "Handbook",
	})

	chunks, err := s.GetDocument(ctx, docID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, "first part", chunks[0].Text)
	assert.Equal(t, "second part", chunks[1].Text)
	assert.Equal(t, "third part", chunks[2].Text)

	assert.Equal(t, "Handbook", chunks[0].Metadata["title"])
	// jsonb numbers decode as float64.
	assert.Equal(t, float64(3), chunks[0].Metadata["total_chunks"])
	assert.False(t, chunks[0].CreatedAt.IsZero(), "CreatedAt should be populated by the database")

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestChunkStore_GetDocument_NotFound_Integration(t *testing.T) {
	testutil.SkipWithoutDocker(t)

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	s := New(db.Pool, log.NewNop())

	_, err := s.GetDocument(context.Background(), "no-such-document")
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestChunkStore_SearchNative_Integration(t *testing.T) {
	testutil.SkipWithoutDocker(t)

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	s := New(db.Pool, log.NewNop())
	ctx := context.Background()

	exact := insertTestChunk(t, s, uuid.NewString(), "vacation policy details",
		axisVector(0), map[string]any{"source": "hr"})
	near := insertTestChunk(t, s, uuid.NewString(), "vacation request form",
		blendVector(0, 1), map[string]any{"source": "hr"})
	insertTestChunk(t, s, uuid.NewString(), "quarterly revenue figures",
		axisVector(5), map[string]any{"source": "finance"})

	query := axisVector(0)

	t.Run("ordered by similarity", func(t *testing.T) {
		matches, err := s.SearchNative(ctx, query, 10, 0.1, nil)
		require.NoError(t, err)
		require.Len(t, matches, 2, "the orthogonal chunk scores 0 and must be excluded")

		assert.Equal(t, exact.ChunkID, matches[0].ChunkID)
		assert.InDelta(t, 1.0, matches[0].Similarity, 0.001)
		assert.Equal(t, near.ChunkID, matches[1].ChunkID)
		assert.InDelta(t, 0.7071, matches[1].Similarity, 0.01)
	})

	t.Run("threshold excludes weak matches", func(t *testing.T) {
		matches, err := s.SearchNative(ctx, query, 10, 0.9, nil)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, exact.ChunkID, matches[0].ChunkID)
	})

	t.Run("limit caps results", func(t *testing.T) {
		matches, err := s.SearchNative(ctx, query, 1, 0.1, nil)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, exact.ChunkID, matches[0].ChunkID)
	})

	t.Run("metadata filter", func(t *testing.T) {
		matches, err := s.SearchNative(ctx, axisVector(5), 10, 0.5,
			map[string]any{"source": "finance"})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "quarterly revenue figures", matches[0].Text)

		matches, err = s.SearchNative(ctx, axisVector(5), 10, 0.5,
			map[string]any{"source": "hr"})
		require.NoError(t, err)
		assert.Empty(t, matches, "filter and similarity must both hold")
	})

	t.Run("no matches above threshold", func(t *testing.T) {
		matches, err := s.SearchNative(ctx, axisVector(42), 10, 0.5, nil)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})
}

func TestChunkStore_ListAll_Integration(t *testing.T) {
	testutil.SkipWithoutDocker(t)

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	s := New(db.Pool, log.NewNop())
	ctx := context.Background()

	docID := uuid.NewString()
	insertTestChunk(t, s, docID, "alpha", axisVector(0), map[string]any{"chunk_index": 0})
	insertTestChunk(t, s, docID, "beta", axisVector(1), map[string]any{"chunk_index": 1})

	stored, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	for _, sc := range stored {
		assert.Equal(t, docID, sc.DocumentID)
		// The scan index parses the "[x,y,...]" text rendering.
		assert.True(t, strings.HasPrefix(sc.Embedding, "["), "embedding %q should be in vector text form", sc.Embedding)
		assert.True(t, strings.HasSuffix(sc.Embedding, "]"))
		assert.NotNil(t, sc.Metadata)
	}
}

func TestChunkStore_DeleteDocument_Integration(t *testing.T) {
	testutil.SkipWithoutDocker(t)

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	s := New(db.Pool, log.NewNop())
	ctx := context.Background()

	keep := uuid.NewString()
	doomed := uuid.NewString()
	insertTestChunk(t, s, keep, "kept chunk", axisVector(0), nil)
	insertTestChunk(t, s, doomed, "doomed chunk one", axisVector(1), nil)
	insertTestChunk(t, s, doomed, "doomed chunk two", axisVector(2), nil)

	deleted, err := s.DeleteDocument(ctx, doomed)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, err = s.GetDocument(ctx, doomed)
	assert.ErrorIs(t, err, fault.ErrNotFound)

	// Deleting again reports not found.
	_, err = s.DeleteDocument(ctx, doomed)
	assert.ErrorIs(t, err, fault.ErrNotFound)

	// Unrelated documents survive.
	chunks, err := s.GetDocument(ctx, keep)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestChunkStore_NilMetadata_Integration(t *testing.T) {
	testutil.SkipWithoutDocker(t)

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	s := New(db.Pool, log.NewNop())
	ctx := context.Background()

	docID := uuid.NewString()
	insertTestChunk(t, s, docID, "bare chunk", axisVector(0), nil)

	chunks, err := s.GetDocument(ctx, docID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.NotNil(t, chunks[0].Metadata, "metadata should decode to an empty map, not nil")
	assert.Empty(t, chunks[0].Metadata)
}
