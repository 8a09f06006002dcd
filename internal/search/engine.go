package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudnetkb/knowledge-base-api/internal/config"
	"github.com/cloudnetkb/knowledge-base-api/internal/domain/docmodel"
	"github.com/cloudnetkb/knowledge-base-api/internal/pipeline/embedding"
	"github.com/cloudnetkb/knowledge-base-api/internal/pipeline/vectorstore"
	"github.com/cloudnetkb/knowledge-base-api/pkg/logger_i"
)

// Result is one formatted hit. Highlight is always empty: vector search
// has no lexical match spans to report.
type Result struct {
	ID        int64                   `json:"id"`
	Title     string                  `json:"title"`
	Content   string                  `json:"content"`
	Source    string                  `json:"source"`
	Score     float64                 `json:"score"`
	Metadata  docmodel.VectorMetadata `json:"metadata"`
	Highlight []string                `json:"highlight"`
}

type Response struct {
	Total          int      `json:"total"`
	Results        []Result `json:"results"`
	Query          string   `json:"query"`
	SearchType     string   `json:"search_type"`
	ProcessingTime float64  `json:"processing_time"`
}

// Engine runs semantic retrieval: embed the query, rank chunks by L2
// distance, convert distances to scores, filter and page.
type Engine struct {
	embedder embedding.Embedder
	index    vectorstore.VectorIndex
	logger   *logger_i.Logger
}

func NewEngine(embedder embedding.Embedder, index vectorstore.VectorIndex) *Engine {
	return &Engine{
		embedder: embedder,
		index:    index,
		logger:   logger_i.NewLogger("Search Engine"),
	}
}

// lengthPenalty dampens very short queries, which embed into vague
// regions of the vector space and would otherwise over-score.
func lengthPenalty(query string) float64 {
	switch n := utf8.RuneCountInString(strings.TrimSpace(query)); {
	case n <= 2:
		return 0.8
	case n <= 4:
		return 0.9
	default:
		return 1.0
	}
}

// distanceToScore maps L2 distance to (0, 1]: exp(-0.5 * d^2).
// d=0 -> 1.0, d=1 -> 0.61, d=2 -> 0.14. The gentle decay favours recall.
func distanceToScore(distance float64) float64 {
	return math.Exp(-config.ScoreDecayCoefficient * distance * distance)
}

// Search returns up to limit hits with score >= minScore, skipping the
// first offset qualifying hits. minScore is floored at the configured
// minimum so near-noise hits never surface, whatever the caller asks
// for. Retrieval errors return an empty result set together with the
// error; they are never silently swallowed.
func (e *Engine) Search(ctx context.Context, query string, limit, offset int, minScore float64, filters docmodel.SearchFilters) (*Response, error) {
	start := time.Now()
	resp := &Response{
		Results:    []Result{},
		Query:      query,
		SearchType: "semantic",
	}

	if strings.TrimSpace(query) == "" {
		resp.ProcessingTime = roundSeconds(time.Since(start))
		return resp, fmt.Errorf("empty search query")
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > config.MaxSearchLimit {
		limit = config.MaxSearchLimit
	}
	if offset < 0 {
		offset = 0
	}
	if minScore < config.MinScoreThreshold {
		minScore = config.MinScoreThreshold
	}

	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		resp.ProcessingTime = roundSeconds(time.Since(start))
		return resp, fmt.Errorf("query embedding failed: %w", err)
	}

	// Overfetch so that pages stay correct after score filtering: the
	// offset applies to qualifying hits, not raw neighbours.
	hits, err := e.index.Query(ctx, vector, limit+offset, 0, filters)
	if err != nil {
		resp.ProcessingTime = roundSeconds(time.Since(start))
		return resp, fmt.Errorf("vector query failed: %w", err)
	}

	penalty := lengthPenalty(query)
	scored := make([]docmodel.ScoredChunk, 0, len(hits))
	for _, hit := range hits {
		hit.Score = distanceToScore(hit.Distance) * penalty
		if hit.Score < minScore {
			continue
		}
		scored = append(scored, hit)
	}

	// Deterministic order: score descending, then document id and chunk
	// index ascending so equal-score pages never shuffle between calls.
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Metadata.DocumentID != scored[j].Metadata.DocumentID {
			return scored[i].Metadata.DocumentID < scored[j].Metadata.DocumentID
		}
		return scored[i].Metadata.ChunkIndex < scored[j].Metadata.ChunkIndex
	})

	if offset < len(scored) {
		page := scored[offset:]
		if limit < len(page) {
			page = page[:limit]
		}
		for _, hit := range page {
			resp.Results = append(resp.Results, Result{
				ID:        hit.Metadata.DocumentID,
				Title:     hit.Metadata.Title,
				Content:   truncateDisplay(hit.Content),
				Source:    hit.Metadata.Filename,
				Score:     hit.Score,
				Metadata:  hit.Metadata,
				Highlight: []string{},
			})
		}
	}

	resp.Total = len(resp.Results)
	resp.ProcessingTime = roundSeconds(time.Since(start))
	e.logger.Debug("search complete", "query", query, "hits", resp.Total,
		"penalty", penalty, "time", resp.ProcessingTime)
	return resp, nil
}

// truncateDisplay caps result content at the display budget, counting
// runes so CJK text is not cut mid-character.
func truncateDisplay(content string) string {
	if utf8.RuneCountInString(content) <= config.MaxDisplayLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:config.MaxDisplayLength]) + "..."
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}
