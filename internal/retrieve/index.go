// Package retrieve finds stored document chunks semantically similar to a
// query.
//
// The Retriever embeds the query text and delegates to a VectorIndex. Two
// index implementations share one contract: ScanIndex buffers every stored
// row and computes cosine similarity in process, PGIndex pushes the search
// into PostgreSQL's pgvector operator. Callers see identical
// threshold/filter/ordering/limit behavior either way.
package retrieve

import (
	"context"
	"math"
	"reflect"

	"github.com/bogachat/boga/internal/store"
)

// Default search parameters, applied when the caller passes zero values.
const (
	// DefaultLimit is the number of chunks returned when unspecified.
	DefaultLimit = 3

	// DefaultThreshold is the minimum similarity for a chunk to count as
	// relevant. 0.45 is the tuned chat-path default; callers wanting a
	// stricter cut (e.g. the search API's 0.7) pass it explicitly.
	DefaultThreshold = 0.45
)

// Params controls one search.
type Params struct {
	Limit     int            // max results; <=0 uses DefaultLimit
	Threshold float64        // minimum similarity in [0,1]
	Filter    map[string]any // conjunction of exact-match metadata keys; nil = no filter
}

// normalize applies defaults to zero-valued fields.
func (p Params) normalize() Params {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	return p
}

// VectorIndex answers similarity searches over the chunk corpus.
//
// Implementations must return matches sorted descending by similarity, at
// most Limit entries, every entry scoring >= Threshold and satisfying the
// metadata filter.
type VectorIndex interface {
	Search(ctx context.Context, query []float32, p Params) ([]store.Match, error)
}

// cosineSimilarity computes 1 - cosine distance between a and b, clamped to
// [0,1]. Zero-norm or mismatched-length vectors are maximally distant
// (similarity 0).
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Min(math.Max(sim, 0), 1)
}

// matchesFilter reports whether metadata satisfies every filter key exactly.
// A key absent from metadata fails the match.
func matchesFilter(metadata, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}
