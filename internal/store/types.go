package store

import "time"

// Chunk is one persisted slice of a source document.
//
// Chunks are immutable after ingestion and are removed only by deleting the
// whole document. The chunk's position within its document (chunk_index,
// total_chunks) travels inside Metadata, mirroring the persisted jsonb.
type Chunk struct {
	DocumentID string         `json:"document_id"`
	ChunkID    string         `json:"chunk_id"`
	Text       string         `json:"chunk_text"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at,omitzero"`
}

// StoredChunk is a Chunk together with its embedding in the store's text
// rendering ("[0.1,0.2,...]"). The naive scan index parses this form back
// into numbers; rows that fail to parse score similarity 0.
type StoredChunk struct {
	Chunk
	Embedding string
}

// Match is a Chunk scored against a query.
// Similarity is 1 - cosine distance, clamped to [0,1].
type Match struct {
	Chunk
	Similarity float64 `json:"similarity"`
}
