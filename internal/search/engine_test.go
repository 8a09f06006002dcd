package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/cloudnetkb/knowledge-base-api/internal/domain/docmodel"
	"github.com/cloudnetkb/knowledge-base-api/internal/pipeline/vectorstore"
)

type mockEmbedder struct {
	OnEmbedQuery func(ctx context.Context, query string) ([]float32, error)
}

func (m *mockEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return m.OnEmbedQuery(ctx, query)
}

func (m *mockEmbedder) BatchEmbedding(ctx context.Context, chunks []string) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	for i := range chunks {
		vectors[i] = []float32{1, 0}
	}
	return vectors, nil
}

func (m *mockEmbedder) ModelName() string { return "mock-model" }

func fixedEmbedder(vector []float32) *mockEmbedder {
	return &mockEmbedder{
		OnEmbedQuery: func(context.Context, string) ([]float32, error) {
			return vector, nil
		},
	}
}

func seededIndex(t *testing.T, records []vectorstore.Record) *vectorstore.MemoryIndex {
	t.Helper()
	idx := vectorstore.NewMemoryIndex()
	ctx := context.Background()
	if err := idx.EnsureCollection(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if err := idx.Add(ctx, records); err != nil {
		t.Fatal(err)
	}
	return idx
}

func record(docID int64, chunkIdx int, content string, vector []float32) vectorstore.Record {
	return vectorstore.Record{
		ChunkKey: fmt.Sprintf("doc_%d_chunk_%d", docID, chunkIdx),
		Vector:   vector,
		Content:  content,
		Metadata: docmodel.VectorMetadata{
			DocumentID: docID,
			ChunkIndex: chunkIdx,
			Title:      "title",
			Filename:   "doc.md",
		},
	}
}

func TestDistanceToScore(t *testing.T) {
	tests := []struct {
		distance float64
		want     float64
	}{
		{0.0, 1.0},
		{0.5, 0.88},
		{1.0, 0.61},
		{1.5, 0.32},
		{2.0, 0.14},
	}
	for _, tt := range tests {
		got := distanceToScore(tt.distance)
		if math.Abs(got-tt.want) > 0.005 {
			t.Errorf("distanceToScore(%v) = %.3f, want ~%.2f", tt.distance, got, tt.want)
		}
	}

	// Strictly monotone: closer is always better.
	prev := distanceToScore(0)
	for d := 0.1; d < 5; d += 0.1 {
		s := distanceToScore(d)
		if s >= prev {
			t.Fatalf("score not decreasing at distance %.1f", d)
		}
		prev = s
	}
}

func TestLengthPenalty(t *testing.T) {
	tests := []struct {
		query string
		want  float64
	}{
		{"ab", 0.8},
		{"负载", 0.8},
		{"abcd", 0.9},
		{"负载均衡", 0.9},
		{"abcde", 1.0},
		{"负载均衡服务", 1.0},
		{"  ab  ", 0.8},
	}
	for _, tt := range tests {
		if got := lengthPenalty(tt.query); got != tt.want {
			t.Errorf("lengthPenalty(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestSearch_ScoresAndFilters(t *testing.T) {
	idx := seededIndex(t, []vectorstore.Record{
		record(1, 0, "exact match content", []float32{1, 0}),
		record(2, 0, "far away content", []float32{-1, 0}),
	})
	engine := NewEngine(fixedEmbedder([]float32{1, 0}), idx)

	resp, err := engine.Search(context.Background(), "long enough query", 10, 0, 0.1, docmodel.SearchFilters{})
	if err != nil {
		t.Fatal(err)
	}

	// Exact match: distance 0, no penalty -> score 1.0.
	// Opposite vector: distance 2 -> score ~0.14, above threshold.
	if resp.Total != 2 {
		t.Fatalf("total = %d, want 2", resp.Total)
	}
	if resp.Results[0].Score != 1.0 {
		t.Errorf("top score = %v, want 1.0", resp.Results[0].Score)
	}
	if resp.Results[0].ID != 1 {
		t.Errorf("top result document = %d, want 1", resp.Results[0].ID)
	}
	if resp.Results[1].Score >= resp.Results[0].Score {
		t.Error("results not sorted by score")
	}
	if resp.SearchType != "semantic" {
		t.Errorf("search_type = %q", resp.SearchType)
	}
}

func TestSearch_MinScoreFiltersResults(t *testing.T) {
	idx := seededIndex(t, []vectorstore.Record{
		record(1, 0, "near", []float32{1, 0}),
		record(2, 0, "far", []float32{-1, 0}), // distance 2 -> score ~0.135
	})
	engine := NewEngine(fixedEmbedder([]float32{1, 0}), idx)

	resp, err := engine.Search(context.Background(), "long enough query", 10, 0, 0.3, docmodel.SearchFilters{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 {
		t.Fatalf("total = %d, want 1 after min_score filter", resp.Total)
	}
	if resp.Results[0].ID != 1 {
		t.Errorf("wrong surviving result: %d", resp.Results[0].ID)
	}
}

func TestSearch_ZeroMinScoreStillFiltersNoise(t *testing.T) {
	idx := seededIndex(t, []vectorstore.Record{
		record(1, 0, "close match", []float32{1, 0}),
		record(2, 0, "barely related", []float32{-1.5, 0}), // distance 2.5 -> score ~0.04
	})
	engine := NewEngine(fixedEmbedder([]float32{1, 0}), idx)

	// A zero threshold from the caller does not disable filtering: the
	// engine floors it at the configured minimum.
	resp, err := engine.Search(context.Background(), "long enough query", 10, 0, 0, docmodel.SearchFilters{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 {
		t.Fatalf("total = %d, want 1 after threshold floor", resp.Total)
	}
	if resp.Results[0].ID != 1 {
		t.Errorf("surviving result = %d, want 1", resp.Results[0].ID)
	}
}

func TestSearch_ShortQueryPenaltyApplied(t *testing.T) {
	idx := seededIndex(t, []vectorstore.Record{
		record(1, 0, "content", []float32{1, 0}),
	})
	engine := NewEngine(fixedEmbedder([]float32{1, 0}), idx)

	resp, err := engine.Search(context.Background(), "ab", 10, 0, 0.1, docmodel.SearchFilters{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 {
		t.Fatal("expected one result")
	}
	// Exact match scaled by the two-character penalty.
	if math.Abs(resp.Results[0].Score-0.8) > 1e-9 {
		t.Errorf("score = %v, want 0.8", resp.Results[0].Score)
	}
}

func TestSearch_TruncatesLongContent(t *testing.T) {
	long := strings.Repeat("字", 600)
	idx := seededIndex(t, []vectorstore.Record{
		record(1, 0, long, []float32{1, 0}),
	})
	engine := NewEngine(fixedEmbedder([]float32{1, 0}), idx)

	resp, err := engine.Search(context.Background(), "long enough query", 10, 0, 0.1, docmodel.SearchFilters{})
	if err != nil {
		t.Fatal(err)
	}
	content := resp.Results[0].Content
	if !strings.HasSuffix(content, "...") {
		t.Error("truncated content missing ellipsis")
	}
	if n := len([]rune(content)); n != 503 {
		t.Errorf("truncated content has %d runes, want 500 + ellipsis", n)
	}
}

func TestSearch_Pagination(t *testing.T) {
	idx := seededIndex(t, []vectorstore.Record{
		record(1, 0, "a", []float32{1, 0}),
		record(2, 0, "b", []float32{0.9, 0.1}),
		record(3, 0, "c", []float32{0.8, 0.2}),
	})
	engine := NewEngine(fixedEmbedder([]float32{1, 0}), idx)
	ctx := context.Background()

	page1, err := engine.Search(ctx, "long enough query", 2, 0, 0.1, docmodel.SearchFilters{})
	if err != nil {
		t.Fatal(err)
	}
	page2, err := engine.Search(ctx, "long enough query", 2, 2, 0.1, docmodel.SearchFilters{})
	if err != nil {
		t.Fatal(err)
	}

	if page1.Total != 2 || page2.Total != 1 {
		t.Fatalf("page sizes = %d, %d; want 2, 1", page1.Total, page2.Total)
	}
	if page1.Results[0].ID != 1 || page1.Results[1].ID != 2 || page2.Results[0].ID != 3 {
		t.Errorf("pagination order wrong: %v %v", page1.Results, page2.Results)
	}
}

func TestSearch_EmbedderUnavailable(t *testing.T) {
	idx := seededIndex(t, nil)
	failing := &mockEmbedder{
		OnEmbedQuery: func(context.Context, string) ([]float32, error) {
			return nil, errors.New("model load failed")
		},
	}
	engine := NewEngine(failing, idx)

	resp, err := engine.Search(context.Background(), "long enough query", 10, 0, 0.1, docmodel.SearchFilters{})
	if err == nil {
		t.Fatal("expected error when embedding is unavailable")
	}
	if len(resp.Results) != 0 {
		t.Error("expected empty results alongside the error")
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	engine := NewEngine(fixedEmbedder([]float32{1, 0}), seededIndex(t, nil))

	if _, err := engine.Search(context.Background(), "   ", 10, 0, 0.1, docmodel.SearchFilters{}); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestSearch_ProviderFilter(t *testing.T) {
	recAWS := record(1, 0, "aws doc", []float32{1, 0})
	recAWS.Metadata.Provider = "AWS"
	recAWS.Metadata.Category = "VPN"
	recGCP := record(2, 0, "gcp doc", []float32{1, 0})
	recGCP.Metadata.Provider = "GCP"

	idx := seededIndex(t, []vectorstore.Record{recAWS, recGCP})
	engine := NewEngine(fixedEmbedder([]float32{1, 0}), idx)

	resp, err := engine.Search(context.Background(), "long enough query", 10, 0, 0.1,
		docmodel.SearchFilters{Provider: "AWS", Category: "VPN"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Results[0].ID != 1 {
		t.Errorf("filter returned wrong results: %+v", resp.Results)
	}
}
