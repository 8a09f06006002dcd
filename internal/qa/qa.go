package qa

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudnetkb/knowledge-base-api/internal/config"
	"github.com/cloudnetkb/knowledge-base-api/internal/domain/docmodel"
	"github.com/cloudnetkb/knowledge-base-api/internal/search"
	"github.com/cloudnetkb/knowledge-base-api/pkg/logger_i"
)

const (
	noResultsAnswer = "抱歉，我在知识库中没有找到相关信息来回答您的问题。"
	errorAnswer     = "抱歉，处理您的问题时发生了错误，请稍后重试。"
	unknownProvider = "未知厂商"
)

// Searcher is the retrieval dependency; satisfied by *search.Engine.
type Searcher interface {
	Search(ctx context.Context, query string, limit, offset int, minScore float64, filters docmodel.SearchFilters) (*search.Response, error)
}

type Source struct {
	Document  string  `json:"document"`
	Excerpt   string  `json:"excerpt"`
	Relevance float64 `json:"relevance"`
	Provider  string  `json:"provider"`
	SourceURL string  `json:"source_url"`
}

type Answer struct {
	Answer         string   `json:"answer"`
	Confidence     float64  `json:"confidence"`
	Sources        []Source `json:"sources"`
	ProcessingTime float64  `json:"processing_time"`
}

type Summary struct {
	Summary          string  `json:"summary"`
	OriginalLength   int     `json:"original_length"`
	SummaryLength    int     `json:"summary_length"`
	CompressionRatio float64 `json:"compression_ratio"`
}

// Service assembles answers from retrieved chunks using fixed templates
// per question family. No generative model is involved.
type Service struct {
	searcher Searcher
	logger   *logger_i.Logger
}

func New(searcher Searcher) *Service {
	return &Service{
		searcher: searcher,
		logger:   logger_i.NewLogger("QA Service"),
	}
}

// AnswerQuestion retrieves context and assembles a templated answer.
// Retrieval failures return the apology answer together with the error
// so callers can distinguish "nothing found" from "backend down".
func (s *Service) AnswerQuestion(ctx context.Context, question string, contextLimit int, includeSources bool, provider, category string) (*Answer, error) {
	start := time.Now()
	if contextLimit <= 0 {
		contextLimit = 3
	}

	filters := docmodel.SearchFilters{Provider: provider, Category: category}

	// Fetch extra results so deduplication still fills the context window.
	resp, err := s.searcher.Search(ctx, question, contextLimit*2, 0, config.MinScoreThreshold, filters)
	if err != nil {
		s.logger.Error("context retrieval failed", "error", err)
		return &Answer{
			Answer:         errorAnswer,
			Sources:        []Source{},
			ProcessingTime: roundSeconds(time.Since(start)),
		}, err
	}

	if len(resp.Results) == 0 {
		return &Answer{
			Answer:         noResultsAnswer,
			Sources:        []Source{},
			ProcessingTime: roundSeconds(time.Since(start)),
		}, nil
	}

	docs := selectContext(resp.Results, contextLimit)
	answer := buildAnswer(question, docs)

	sources := []Source{}
	if includeSources {
		sources = prepareSources(docs)
	}

	return &Answer{
		Answer:         answer,
		Confidence:     confidence(docs),
		Sources:        sources,
		ProcessingTime: roundSeconds(time.Since(start)),
	}, nil
}

// selectContext deduplicates by document id, keeping the highest-scored
// chunk per document, up to the context budget.
func selectContext(results []search.Result, limit int) []search.Result {
	seen := map[int64]bool{}
	var docs []search.Result
	for _, r := range results {
		if seen[r.ID] || len(docs) >= limit {
			continue
		}
		seen[r.ID] = true
		docs = append(docs, r)
	}
	return docs
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func buildAnswer(question string, docs []search.Result) string {
	lower := strings.ToLower(question)
	var parts []string

	switch {
	case containsAny(lower, "什么是", "what is", "定义", "介绍"):
		best := docs[0]
		parts = append(parts, fmt.Sprintf("根据知识库信息，%s的相关内容如下：", best.Title))
		parts = append(parts, clip(best.Content, 800))

	case containsAny(lower, "区别", "差异", "对比", "vs", "比较", "竞品"):
		parts = append(parts, "基于知识库信息，各厂商产品对比如下：")
		parts = append(parts, providerBreakdown(docs, "【%s】")...)

	case containsAny(lower, "如何", "how", "怎么", "步骤", "配置"):
		parts = append(parts, "基于知识库内容，相关操作说明如下：")
		parts = append(parts, clip(docs[0].Content, 800))

	default:
		parts = append(parts, "根据知识库搜索结果，竞品分析如下：")
		parts = append(parts, providerBreakdown(docs, "【%s产品分析】")...)
	}

	return strings.Join(parts, "\n")
}

// providerBreakdown groups context documents by vendor, preserving the
// order providers first appear in; at most 3 vendors, 2 documents each.
func providerBreakdown(docs []search.Result, headerFormat string) []string {
	grouped := map[string][]search.Result{}
	var order []string
	for _, doc := range docs {
		p := doc.Metadata.Provider
		if p == "" {
			p = unknownProvider
		}
		if _, ok := grouped[p]; !ok {
			order = append(order, p)
		}
		grouped[p] = append(grouped[p], doc)
	}

	if len(order) > 3 {
		order = order[:3]
	}

	var parts []string
	for _, p := range order {
		parts = append(parts, "\n"+fmt.Sprintf(headerFormat, p))
		group := grouped[p]
		if len(group) > 2 {
			group = group[:2]
		}
		for _, doc := range group {
			parts = append(parts, "• "+doc.Title)
			parts = append(parts, "  "+clip(doc.Content, 300))
		}
	}
	return parts
}

// confidence grows with context size and the best retrieval score,
// capped well below certainty: template answers never claim authority.
func confidence(docs []search.Result) float64 {
	if len(docs) == 0 {
		return 0
	}
	return math.Min(0.8, float64(len(docs))*0.25+docs[0].Score*0.3)
}

func prepareSources(docs []search.Result) []Source {
	sources := make([]Source, 0, len(docs))
	for _, doc := range docs {
		name := doc.Source
		if name == "" {
			name = doc.Title
		}
		sources = append(sources, Source{
			Document:  name,
			Excerpt:   clip(doc.Content, 300),
			Relevance: math.Round(doc.Score*1000) / 1000,
			Provider:  doc.Metadata.Provider,
			SourceURL: doc.Metadata.SourceURL,
		})
	}
	return sources
}

// Summarize produces an extractive summary: leading sentences up to the
// type budget, clipped to maxLength runes.
func (s *Service) Summarize(text, summaryType string, maxLength int) *Summary {
	if maxLength <= 0 {
		maxLength = 200
	}
	originalLength := utf8.RuneCountInString(text)

	sentenceBudget := 3
	if summaryType == "detailed" {
		sentenceBudget = 7
	}

	var kept []string
	for _, sentence := range strings.Split(text, "。") {
		sentence = strings.TrimSpace(sentence)
		if utf8.RuneCountInString(sentence) > 10 {
			kept = append(kept, sentence)
		}
		if len(kept) == sentenceBudget {
			break
		}
	}

	summary := strings.Join(kept, "。")
	if summary != "" && !strings.HasSuffix(summary, "。") {
		summary += "。"
	}
	if summary == "" {
		summary = clipExact(text, maxLength)
	}
	if utf8.RuneCountInString(summary) > maxLength {
		summary = clipExact(summary, maxLength)
	}

	summaryLength := utf8.RuneCountInString(summary)
	ratio := 0.0
	if originalLength > 0 {
		ratio = math.Round(float64(summaryLength)/float64(originalLength)*1000) / 1000
	}
	return &Summary{
		Summary:          summary,
		OriginalLength:   originalLength,
		SummaryLength:    summaryLength,
		CompressionRatio: ratio,
	}
}

// clip shortens to limit runes with an ellipsis when truncation happens.
func clip(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit]) + "..."
}

// clipExact keeps the result within limit runes including the ellipsis.
func clipExact(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	if limit <= 3 {
		return string([]rune(text)[:limit])
	}
	return string([]rune(text)[:limit-3]) + "..."
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}
