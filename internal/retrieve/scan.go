package retrieve

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bogachat/boga/internal/log"
	"github.com/bogachat/boga/internal/store"
)

// Lister supplies the full chunk corpus with embeddings in text form.
// Satisfied by *store.ChunkStore.
type Lister interface {
	ListAll(ctx context.Context) ([]store.StoredChunk, error)
}

// ScanIndex is the naive full-scan index: it buffers every stored row and
// computes cosine similarity in process. O(corpus) per query; fine for small
// corpora, swapped for PGIndex behind the same VectorIndex interface when
// the corpus grows.
type ScanIndex struct {
	chunks Lister
	logger log.Logger
}

// NewScanIndex creates a ScanIndex over the given chunk source.
func NewScanIndex(chunks Lister, logger log.Logger) *ScanIndex {
	if logger == nil {
		logger = log.NewNop()
	}
	return &ScanIndex{chunks: chunks, logger: logger}
}

// Search scans all rows, scoring each against the query vector.
//
// A row whose stored embedding fails to parse scores similarity 0 and is
// dropped by any positive threshold; it never aborts the search.
func (s *ScanIndex) Search(ctx context.Context, query []float32, p Params) ([]store.Match, error) {
	p = p.normalize()

	rows, err := s.chunks.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan index: %w", err)
	}

	matches := make([]store.Match, 0, p.Limit)
	for _, row := range rows {
		if len(p.Filter) > 0 && !matchesFilter(row.Metadata, p.Filter) {
			continue
		}

		stored, perr := parseVector(row.Embedding)
		sim := 0.0
		if perr != nil {
			s.logger.Warn("unparseable stored embedding, treating as dissimilar",
				"chunk_id", row.ChunkID, "error", perr)
		} else {
			sim = cosineSimilarity(query, stored)
		}
		if sim < p.Threshold {
			continue
		}

		matches = append(matches, store.Match{Chunk: row.Chunk, Similarity: sim})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > p.Limit {
		matches = matches[:p.Limit]
	}
	return matches, nil
}

// parseVector decodes pgvector's text rendering "[0.1,0.2,...]" back into
// floats.
func parseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("embedding %q is not a bracketed vector", truncate(s, 32))
	}

	inner := s[1 : len(s)-1]
	if strings.TrimSpace(inner) == "" {
		return nil, fmt.Errorf("embedding is empty")
	}

	parts := strings.Split(inner, ",")
	vec := make([]float32, len(parts))
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("embedding component %d: %w", i, err)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
