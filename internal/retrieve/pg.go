package retrieve

import (
	"context"
	"fmt"

	"github.com/bogachat/boga/internal/store"
)

// NativeSearcher runs similarity searches inside the database.
// Satisfied by *store.ChunkStore.
type NativeSearcher interface {
	SearchNative(ctx context.Context, query []float32, limit int, threshold float64, filter map[string]any) ([]store.Match, error)
}

// PGIndex delegates similarity search to pgvector's cosine operator, letting
// PostgreSQL use a real vector index instead of a full scan. It honors the
// same threshold/filter/ordering/limit contract as ScanIndex.
type PGIndex struct {
	searcher NativeSearcher
}

// NewPGIndex creates a PGIndex over the given searcher.
func NewPGIndex(searcher NativeSearcher) *PGIndex {
	return &PGIndex{searcher: searcher}
}

// Search runs the query database-side.
func (p *PGIndex) Search(ctx context.Context, query []float32, params Params) ([]store.Match, error) {
	params = params.normalize()

	matches, err := p.searcher.SearchNative(ctx, query, params.Limit, params.Threshold, params.Filter)
	if err != nil {
		return nil, fmt.Errorf("pg index: %w", err)
	}
	return matches, nil
}
