package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bogachat/boga/internal/fault"
	"github.com/bogachat/boga/internal/log"
	"github.com/bogachat/boga/internal/store"
)

type stubEmbedder struct {
	vector []float32
	err    error
	texts  []string
}

func (s *stubEmbedder) Name() string            { return "stub/embedder" }
func (s *stubEmbedder) Register(_ api.Registry) {}

func (s *stubEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	for _, doc := range req.Input {
		var sb strings.Builder
		for _, p := range doc.Content {
			sb.WriteString(p.Text)
		}
		s.texts = append(s.texts, sb.String())
	}
	if s.err != nil {
		return nil, s.err
	}
	embeddings := make([]*ai.Embedding, len(req.Input))
	for i := range embeddings {
		embeddings[i] = &ai.Embedding{Embedding: s.vector}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

type recordingInserter struct {
	chunks     []store.Chunk
	embeddings [][]float32
	failAfter  int // fail on the n-th insert (1-based); 0 = never
}

func (r *recordingInserter) InsertChunk(_ context.Context, c store.Chunk, embedding []float32) error {
	if r.failAfter > 0 && len(r.chunks)+1 == r.failAfter {
		return errors.New("insert failed")
	}
	r.chunks = append(r.chunks, c)
	r.embeddings = append(r.embeddings, embedding)
	return nil
}

func TestIngestor_Ingest(t *testing.T) {
	t.Parallel()

	emb := &stubEmbedder{vector: []float32{0.1, 0.2, 0.3}}
	ins := &recordingInserter{}
	ing := New(emb, ins, log.NewNop())

	text := strings.Repeat("a", 2500)
	ids, err := ing.Ingest(context.Background(), "doc-1", text,
		map[string]any{"title": "Handbook"}, 1000, 200)
	require.NoError(t, err)

	// 2500 runes at size 1000, overlap 200: windows start at 0, 800, 1600.
	require.Len(t, ids, 3)
	require.Len(t, ins.chunks, 3)
	assert.Equal(t, ids[0], ins.chunks[0].ChunkID)

	for i, c := range ins.chunks {
		assert.Equal(t, "doc-1", c.DocumentID)
		assert.NotEmpty(t, c.ChunkID)
		assert.Equal(t, "Handbook", c.Metadata["title"])
		assert.Equal(t, i, c.Metadata["chunk_index"])
		assert.Equal(t, 3, c.Metadata["total_chunks"])
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, ins.embeddings[i])
	}

	// Each chunk was embedded with its own text.
	require.Len(t, emb.texts, 3)
	assert.Equal(t, ins.chunks[0].Text, emb.texts[0])
}

func TestIngestor_GeneratesDocumentID(t *testing.T) {
	t.Parallel()

	emb := &stubEmbedder{vector: []float32{1}}
	ins := &recordingInserter{}
	ing := New(emb, ins, log.NewNop())

	_, err := ing.Ingest(context.Background(), "", "short document", nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, ins.chunks, 1)
	assert.NotEmpty(t, ins.chunks[0].DocumentID)
}

func TestIngestor_EmptyDocument(t *testing.T) {
	t.Parallel()

	ing := New(&stubEmbedder{vector: []float32{1}}, &recordingInserter{}, log.NewNop())

	_, err := ing.Ingest(context.Background(), "doc-1", "", nil, 0, 0)
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestIngestor_EmbedderFailure(t *testing.T) {
	t.Parallel()

	t.Run("error", func(t *testing.T) {
		t.Parallel()
		emb := &stubEmbedder{err: errors.New("quota exceeded")}
		ins := &recordingInserter{}
		ing := New(emb, ins, log.NewNop())

		ids, err := ing.Ingest(context.Background(), "doc-1", "some text", nil, 0, 0)
		assert.ErrorIs(t, err, fault.ErrUpstreamModel)
		assert.Empty(t, ids)
		assert.Empty(t, ins.chunks)
	})

	t.Run("empty vector", func(t *testing.T) {
		t.Parallel()
		emb := &stubEmbedder{vector: nil}
		ing := New(emb, &recordingInserter{}, log.NewNop())

		_, err := ing.Ingest(context.Background(), "doc-1", "some text", nil, 0, 0)
		assert.ErrorIs(t, err, fault.ErrUpstreamModel)
	})
}

func TestIngestor_PartialFailureReturnsPersistedIDs(t *testing.T) {
	t.Parallel()

	emb := &stubEmbedder{vector: []float32{1}}
	ins := &recordingInserter{failAfter: 2}
	ing := New(emb, ins, log.NewNop())

	text := strings.Repeat("b", 2500)
	ids, err := ing.Ingest(context.Background(), "doc-1", text, nil, 1000, 200)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk 2/3")
	assert.Len(t, ids, 1, "ids of chunks persisted before the failure are returned")
}

func TestIngestor_MetadataNotShared(t *testing.T) {
	t.Parallel()

	emb := &stubEmbedder{vector: []float32{1}}
	ins := &recordingInserter{}
	ing := New(emb, ins, log.NewNop())

	shared := map[string]any{"source": "upload"}
	text := strings.Repeat("c", 1500)
	_, err := ing.Ingest(context.Background(), "doc-1", text, shared, 1000, 200)
	require.NoError(t, err)
	require.Len(t, ins.chunks, 2)

	// Each chunk gets its own metadata map; the caller's map stays untouched.
	assert.NotContains(t, shared, "chunk_index")
	assert.NotEqual(t,
		ins.chunks[0].Metadata["chunk_index"],
		ins.chunks[1].Metadata["chunk_index"])
}
