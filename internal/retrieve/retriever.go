package retrieve

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"

	"github.com/bogachat/boga/internal/fault"
	"github.com/bogachat/boga/internal/log"
	"github.com/bogachat/boga/internal/store"
)

// Retriever embeds query text and searches the configured vector index.
// Safe for concurrent use.
type Retriever struct {
	embedder ai.Embedder
	index    VectorIndex
	logger   log.Logger
}

// NewRetriever creates a Retriever.
func NewRetriever(embedder ai.Embedder, index VectorIndex, logger log.Logger) *Retriever {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Retriever{embedder: embedder, index: index, logger: logger}
}

// Option adjusts search parameters for one Retrieve call.
type Option func(*Params)

// WithLimit caps the number of returned chunks.
func WithLimit(limit int) Option {
	return func(p *Params) { p.Limit = limit }
}

// WithThreshold overrides the minimum similarity.
func WithThreshold(threshold float64) Option {
	return func(p *Params) { p.Threshold = threshold }
}

// WithFilter restricts matches to chunks whose metadata contains every
// given key with an exactly equal value.
func WithFilter(filter map[string]any) Option {
	return func(p *Params) { p.Filter = filter }
}

// Retrieve embeds the query and returns the most similar chunks.
// Defaults: limit DefaultLimit, threshold DefaultThreshold, no filter.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...Option) ([]store.Match, error) {
	p := Params{Threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(&p)
	}
	p = p.normalize()

	vec, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := r.index.Search(ctx, vec, p)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	r.logger.Debug("retrieved chunks",
		"query_length", len(query),
		"matches", len(matches),
		"limit", p.Limit,
		"threshold", p.Threshold)
	return matches, nil
}

// embedQuery turns the query text into a vector in the chunk embedding space.
func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	resp, err := r.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(query)}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w: %w", fault.ErrUpstreamModel, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding query: empty embedding returned: %w", fault.ErrUpstreamModel)
	}
	return resp.Embeddings[0].Embedding, nil
}
