package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudnetkb/knowledge-base-api/internal/api"
	"github.com/cloudnetkb/knowledge-base-api/internal/domain/docmodel"
	"github.com/cloudnetkb/knowledge-base-api/internal/metrics"
	"github.com/cloudnetkb/knowledge-base-api/internal/search"
)

// SearchHandler godoc
// @Summary      Search the knowledge base
// @Description  Semantic search over indexed document chunks, with provider/category/source filters.
// @Tags         Knowledge
// @Produce      json
// @Param        query      query     string  true   "Search query"
// @Param        limit      query     int     false  "Maximum results (default 10, max 100)"
// @Param        offset     query     int     false  "Result offset"
// @Param        source     query     string  false  "Filter by source filename"
// @Param        provider   query     string  false  "Filter by cloud provider"
// @Param        category   query     string  false  "Filter by product category"
// @Param        min_score  query     number  false  "Minimum similarity score"
// @Success      200  {object}  search.Response
// @Failure      400  {object}  api.ErrorResponse
// @Failure      503  {object}  api.ErrorResponse
// @Router       /api/v1/knowledge/search [get]
func SearchHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		logKH.Warn("Invalid Context by request ", r.RemoteAddr)
		return
	}

	req := api.SearchRequest{
		Query:    r.URL.Query().Get("query"),
		Limit:    queryInt(r, "limit", 10),
		Offset:   queryInt(r, "offset", 0),
		Source:   r.URL.Query().Get("source"),
		Provider: r.URL.Query().Get("provider"),
		Category: r.URL.Query().Get("category"),
		MinScore: queryFloat(r, "min_score", 0),
	}
	runSearch(w, r, req)
}

// SearchPostHandler godoc
// @Summary      Search the knowledge base (POST)
// @Description  Same as GET /search but with a JSON body, for long queries.
// @Tags         Knowledge
// @Accept       json
// @Produce      json
// @Param        request  body      api.SearchRequest  true  "Search parameters"
// @Success      200  {object}  search.Response
// @Failure      400  {object}  api.ErrorResponse
// @Failure      503  {object}  api.ErrorResponse
// @Router       /api/v1/knowledge/search [post]
func SearchPostHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		logKH.Warn("Invalid Context by request ", r.RemoteAddr)
		return
	}

	var req api.SearchRequest
	defer closeBody(r.Body)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logKH.Warn("Bad search request", "error", err)
		WriteErrorResponse(w, http.StatusBadRequest, "", "Bad Request")
		return
	}
	runSearch(w, r, req)
}

func runSearch(w http.ResponseWriter, r *http.Request, req api.SearchRequest) {
	if strings.TrimSpace(req.Query) == "" {
		WriteErrorResponse(w, http.StatusBadRequest, "", "query is required")
		return
	}

	filters := docmodel.SearchFilters{
		Provider: req.Provider,
		Category: req.Category,
		Filename: req.Source,
	}

	key := search.CacheKey(req.Query, req.Limit, req.Offset, req.MinScore, filters)
	if cached, ok := registry.cache.Get(r.Context(), key); ok {
		metrics.SearchCacheHit()
		writeJsonResponse(w, http.StatusOK, cached)
		return
	}
	metrics.SearchCacheMiss()

	start := time.Now()
	resp, err := registry.engine.Search(r.Context(), req.Query, req.Limit, req.Offset, req.MinScore, filters)
	metrics.CaptureExecutionMetrics("search_engine", time.Since(start))
	if err != nil {
		logKH.Error("Search failed", "query", req.Query, "error", err)
		WriteErrorResponse(w, http.StatusServiceUnavailable, "", "Search failed")
		return
	}

	registry.cache.Set(r.Context(), key, resp)
	writeJsonResponse(w, http.StatusOK, resp)
}

// QAHandler godoc
// @Summary      Answer a question from the knowledge base
// @Description  Retrieves context documents and assembles a templated answer with sources.
// @Tags         Knowledge
// @Accept       json
// @Produce      json
// @Param        request  body      api.QuestionAnswerRequest  true  "Question and context options"
// @Success      200  {object}  api.QuestionAnswerResponse
// @Failure      400  {object}  api.ErrorResponse
// @Failure      503  {object}  api.ErrorResponse
// @Router       /api/v1/knowledge/qa [post]
func QAHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		logKH.Warn("Invalid Context by request ", r.RemoteAddr)
		return
	}

	var req api.QuestionAnswerRequest
	defer closeBody(r.Body)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		logKH.Warn("Bad QA request", "error", err)
		WriteErrorResponse(w, http.StatusBadRequest, "", "question is required")
		return
	}

	includeSources := true
	if req.IncludeSources != nil {
		includeSources = *req.IncludeSources
	}

	answer, err := registry.qa.AnswerQuestion(r.Context(), req.Question, req.ContextLimit, includeSources, req.Provider, req.Category)
	if err != nil {
		logKH.Error("QA failed", "question", req.Question, "error", err)
		WriteErrorResponse(w, http.StatusServiceUnavailable, "", "Question answering failed")
		return
	}

	writeJsonResponse(w, http.StatusOK, api.QuestionAnswerResponse{
		Question:       req.Question,
		Answer:         answer.Answer,
		Confidence:     answer.Confidence,
		Sources:        answer.Sources,
		ProcessingTime: answer.ProcessingTime,
	})
}

// SummarizeHandler godoc
// @Summary      Summarize text or a stored document
// @Description  Extractive summary of raw text or a catalog document's content.
// @Tags         Knowledge
// @Accept       json
// @Produce      json
// @Param        request  body      api.SummarizeRequest  true  "Text or document id"
// @Success      200  {object}  qa.Summary
// @Failure      400  {object}  api.ErrorResponse
// @Failure      404  {object}  api.ErrorResponse
// @Router       /api/v1/knowledge/summarize [post]
func SummarizeHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		logKH.Warn("Invalid Context by request ", r.RemoteAddr)
		return
	}

	var req api.SummarizeRequest
	defer closeBody(r.Body)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logKH.Warn("Bad summarize request", "error", err)
		WriteErrorResponse(w, http.StatusBadRequest, "", "Bad Request")
		return
	}

	text := req.Text
	if req.DocumentId > 0 {
		doc, err := registry.catalog.GetByID(r.Context(), req.DocumentId)
		if err != nil {
			WriteErrorResponse(w, http.StatusNotFound, "", "Document not found")
			return
		}
		text = doc.Content
	}
	if text == "" {
		WriteErrorResponse(w, http.StatusBadRequest, "", "Either document_id or text must be provided")
		return
	}

	writeJsonResponse(w, http.StatusOK, registry.qa.Summarize(text, req.SummaryType, req.MaxLength))
}

// RecommendHandler godoc
// @Summary      Recommend related documents
// @Description  Suggests documents similar to a query or to a stored document.
// @Tags         Knowledge
// @Produce      json
// @Param        document_id           query  int     false  "Base document id"
// @Param        query                 query  string  false  "Query text"
// @Param        limit                 query  int     false  "Recommendation count (default 5, max 20)"
// @Param        similarity_threshold  query  number  false  "Minimum similarity (default 0.5)"
// @Success      200  {object}  api.RecommendResponse
// @Failure      400  {object}  api.ErrorResponse
// @Failure      404  {object}  api.ErrorResponse
// @Router       /api/v1/knowledge/recommend [get]
func RecommendHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		logKH.Warn("Invalid Context by request ", r.RemoteAddr)
		return
	}

	start := time.Now()
	documentID := int64(queryInt(r, "document_id", 0))
	queryText := r.URL.Query().Get("query")
	limit := queryInt(r, "limit", 5)
	if limit < 1 {
		limit = 5
	}
	if limit > 20 {
		limit = 20
	}
	threshold := queryFloat(r, "similarity_threshold", 0.5)

	baseDocument := ""
	if documentID > 0 {
		doc, err := registry.catalog.GetByID(r.Context(), documentID)
		if err != nil {
			WriteErrorResponse(w, http.StatusNotFound, "", "Document not found")
			return
		}
		// The opening of the document stands in for the whole of it.
		queryText = leadingRunes(doc.Content, 3000)
		baseDocument = doc.Title
	}
	if strings.TrimSpace(queryText) == "" {
		WriteErrorResponse(w, http.StatusBadRequest, "", "Either document_id or query must be provided")
		return
	}

	// Overfetch so self-hits and low scores can be dropped.
	resp, err := registry.engine.Search(r.Context(), queryText, limit*2, 0, threshold, docmodel.SearchFilters{})
	if err != nil {
		logKH.Error("Recommendation failed", "error", err)
		WriteErrorResponse(w, http.StatusServiceUnavailable, "", "Recommendation failed")
		return
	}

	recommendations := []search.Result{}
	for _, result := range resp.Results {
		if documentID > 0 && result.ID == documentID {
			continue
		}
		recommendations = append(recommendations, result)
		if len(recommendations) >= limit {
			break
		}
	}

	writeJsonResponse(w, http.StatusOK, api.RecommendResponse{
		Recommendations: recommendations,
		BaseDocument:    baseDocument,
		ProcessingTime:  roundSeconds(time.Since(start)),
	})
}

// StatsHandler godoc
// @Summary      Knowledge base statistics
// @Description  Chunk counts, provider and category distributions, and catalog status counts.
// @Tags         Knowledge
// @Produce      json
// @Success      200  {object}  api.StatsResponse
// @Failure      500  {object}  api.ErrorResponse
// @Router       /api/v1/knowledge/stats [get]
func StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		logKH.Warn("Invalid Context by request ", r.RemoteAddr)
		return
	}

	stats, err := registry.index.Stats(r.Context())
	if err != nil {
		logKH.Error("Stats collection failed", "error", err)
		WriteErrorResponse(w, http.StatusInternalServerError, "", "Failed to get stats")
		return
	}
	stats.EmbeddingModel = registry.embedder

	total, byStatus, err := registry.catalog.Counts(r.Context())
	if err != nil {
		logKH.Error("Catalog counts failed", "error", err)
		WriteErrorResponse(w, http.StatusInternalServerError, "", "Failed to get stats")
		return
	}

	writeJsonResponse(w, http.StatusOK, api.StatsResponse{
		VectorStore:    stats,
		TotalDocuments: total,
		ByStatus:       byStatus,
		LastUpdated:    float64(time.Now().UnixMilli()) / 1000,
	})
}

func closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		logKH.Error("Couldn't close the request body reader :", err)
	}
}

func leadingRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func roundSeconds(d time.Duration) float64 {
	return float64(d.Milliseconds()) / 1000
}
