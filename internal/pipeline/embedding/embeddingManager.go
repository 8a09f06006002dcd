package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable distinguishes "the model could not be loaded" from every
// other failure mode; search and indexing surface it as a 503, not an
// empty result.
var ErrUnavailable = errors.New("embedding provider unavailable")

type Embedder interface {
	// EmbedQuery embeds a single search query. The retrieval instruction
	// prefix is applied on this side only; document chunks are embedded
	// without framing.
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
	BatchEmbedding(ctx context.Context, chunks []string) ([][]float32, error)
	ModelName() string
}
