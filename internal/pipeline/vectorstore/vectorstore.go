package vectorstore

import (
	"context"
	"errors"

	"github.com/cloudnetkb/knowledge-base-api/internal/domain/docmodel"
)

// ErrDimensionMismatch reports a record whose vector length differs from
// the collection's declared dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Record is one chunk ready for upsert: the chunk key is stable across
// re-indexing runs so repeated indexing overwrites instead of duplicating.
type Record struct {
	ChunkKey string
	Vector   []float32
	Content  string
	Metadata docmodel.VectorMetadata
}

// VectorIndex is the storage contract for embeddings. Search runs purely
// against this index; there is no separate lexical index.
type VectorIndex interface {
	// EnsureCollection creates the collection if missing. If it exists
	// with a different vector dimension it is dropped and recreated,
	// losing all vectors; callers decide when that trade is acceptable.
	EnsureCollection(ctx context.Context, dimension int) error

	Add(ctx context.Context, records []Record) error
	DeleteByDocument(ctx context.Context, documentID int64) error

	// UpdateDocumentMetadata rewrites the catalog-owned payload fields on
	// every chunk of a document, repairing drift without re-embedding.
	UpdateDocumentMetadata(ctx context.Context, documentID int64, provider, category string) error

	// Query returns the nearest chunks by L2 distance, closest first.
	// Filters compose with AND semantics.
	Query(ctx context.Context, vector []float32, limit, offset int, filters docmodel.SearchFilters) ([]docmodel.ScoredChunk, error)

	Count(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*docmodel.CollectionStats, error)
	Reset(ctx context.Context, dimension int) error
}
