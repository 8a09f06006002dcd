package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/cloudnetkb/knowledge-base-api/internal/domain/docmodel"
)

// MemoryIndex is a process-local VectorIndex with brute-force L2 search.
// It backs tests and lets the service run without a qdrant instance.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]Record
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{records: map[string]Record{}}
}

func (m *MemoryIndex) EnsureCollection(_ context.Context, dimension int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dimension != 0 && m.dimension != dimension {
		// Same destructive semantics as the qdrant implementation.
		m.records = map[string]Record{}
	}
	m.dimension = dimension
	return nil
}

func (m *MemoryIndex) Add(_ context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		if m.dimension != 0 && len(rec.Vector) != m.dimension {
			return fmt.Errorf("%w: got %d, collection is %d", ErrDimensionMismatch, len(rec.Vector), m.dimension)
		}
		m.records[rec.ChunkKey] = rec
	}
	return nil
}

func (m *MemoryIndex) DeleteByDocument(_ context.Context, documentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, rec := range m.records {
		if rec.Metadata.DocumentID == documentID {
			delete(m.records, key)
		}
	}
	return nil
}

func (m *MemoryIndex) UpdateDocumentMetadata(_ context.Context, documentID int64, provider, category string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, rec := range m.records {
		if rec.Metadata.DocumentID == documentID {
			rec.Metadata.Provider = provider
			rec.Metadata.Category = category
			m.records[key] = rec
		}
	}
	return nil
}

func matchesFilters(meta docmodel.VectorMetadata, filters docmodel.SearchFilters) bool {
	if filters.Provider != "" && meta.Provider != filters.Provider {
		return false
	}
	if filters.Category != "" && meta.Category != filters.Category {
		return false
	}
	if filters.Filename != "" && meta.Filename != filters.Filename {
		return false
	}
	return true
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func (m *MemoryIndex) Query(_ context.Context, vector []float32, limit, offset int, filters docmodel.SearchFilters) ([]docmodel.ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.dimension != 0 && len(vector) != m.dimension {
		return nil, fmt.Errorf("%w: query has %d, collection is %d", ErrDimensionMismatch, len(vector), m.dimension)
	}

	hits := make([]docmodel.ScoredChunk, 0, len(m.records))
	for _, rec := range m.records {
		if !matchesFilters(rec.Metadata, filters) {
			continue
		}
		hits = append(hits, docmodel.ScoredChunk{
			ChunkID:  rec.ChunkKey,
			Content:  rec.Content,
			Metadata: rec.Metadata,
			Distance: l2Distance(vector, rec.Vector),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		// Stable order for equal distances.
		if hits[i].Metadata.DocumentID != hits[j].Metadata.DocumentID {
			return hits[i].Metadata.DocumentID < hits[j].Metadata.DocumentID
		}
		return hits[i].Metadata.ChunkIndex < hits[j].Metadata.ChunkIndex
	})

	if offset >= len(hits) {
		return []docmodel.ScoredChunk{}, nil
	}
	hits = hits[offset:]
	if limit < len(hits) {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MemoryIndex) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func (m *MemoryIndex) Stats(_ context.Context) (*docmodel.CollectionStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	providerCounts := map[string]int{}
	categoryCounts := map[string]int{}
	for _, rec := range m.records {
		if rec.Metadata.Provider != "" {
			providerCounts[rec.Metadata.Provider]++
		}
		if rec.Metadata.Category != "" {
			categoryCounts[rec.Metadata.Category]++
		}
	}
	return buildStats(len(m.records), providerCounts, categoryCounts), nil
}

func (m *MemoryIndex) Reset(_ context.Context, dimension int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = map[string]Record{}
	m.dimension = dimension
	return nil
}
