// Package ingest turns raw document text into stored, embedded chunks.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/bogachat/boga/internal/chunk"
	"github.com/bogachat/boga/internal/fault"
	"github.com/bogachat/boga/internal/log"
	"github.com/bogachat/boga/internal/store"
)

// ErrEmptyDocument indicates the document text produced no chunks.
var ErrEmptyDocument = errors.New("document has no content to ingest")

// Inserter persists one embedded chunk.
// Consumer-defined so tests can substitute a fake for ChunkStore.
type Inserter interface {
	InsertChunk(ctx context.Context, c store.Chunk, embedding []float32) error
}

// Ingestor chunks, embeds, and persists documents.
type Ingestor struct {
	embedder ai.Embedder
	store    Inserter
	logger   log.Logger
}

// New creates an Ingestor.
func New(embedder ai.Embedder, st Inserter, logger log.Logger) *Ingestor {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Ingestor{embedder: embedder, store: st, logger: logger}
}

// Ingest splits text into overlapping chunks, embeds each one, and persists
// them under documentID. Size and overlap follow chunk.Split semantics; pass
// zero for the defaults. The given metadata is attached to every chunk,
// augmented with chunk_index and total_chunks.
//
// Returns the chunk ids in document order. A failure partway through leaves
// the already persisted chunks in place; re-ingesting after deleting the
// document is the recovery path.
func (in *Ingestor) Ingest(ctx context.Context, documentID, text string, metadata map[string]any, size, overlap int) ([]string, error) {
	if documentID == "" {
		documentID = uuid.NewString()
	}

	chunks := chunk.Split(text, size, overlap)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %q: %w", documentID, ErrEmptyDocument)
	}

	ids := make([]string, 0, len(chunks))
	for i, chunkText := range chunks {
		embedding, err := in.embed(ctx, chunkText)
		if err != nil {
			return ids, fmt.Errorf("embedding chunk %d/%d of document %q: %w",
				i+1, len(chunks), documentID, err)
		}

		meta := make(map[string]any, len(metadata)+2)
		for k, v := range metadata {
			meta[k] = v
		}
		meta["chunk_index"] = i
		meta["total_chunks"] = len(chunks)

		c := store.Chunk{
			DocumentID: documentID,
			ChunkID:    uuid.NewString(),
			Text:       chunkText,
			Metadata:   meta,
		}
		if err := in.store.InsertChunk(ctx, c, embedding); err != nil {
			return ids, fmt.Errorf("persisting chunk %d/%d of document %q: %w",
				i+1, len(chunks), documentID, err)
		}
		ids = append(ids, c.ChunkID)
	}

	in.logger.Info("ingested document",
		"document_id", documentID,
		"chunks", len(ids),
		"text_length", len(text))
	return ids, nil
}

// embed produces the embedding vector for one chunk of text.
func (in *Ingestor) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := in.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{{Content: []*ai.Part{ai.NewTextPart(text)}}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fault.ErrUpstreamModel, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: embedder returned no vector", fault.ErrUpstreamModel)
	}
	return resp.Embeddings[0].Embedding, nil
}
