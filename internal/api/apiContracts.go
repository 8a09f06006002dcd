package api

import (
	"time"

	"github.com/cloudnetkb/knowledge-base-api/internal/domain/docmodel"
	"github.com/cloudnetkb/knowledge-base-api/internal/qa"
	"github.com/cloudnetkb/knowledge-base-api/internal/search"
)

type ErrorResponse struct {
	Error string `json:"error" example:"document not found"`
	Code  int    `json:"code" example:"404"`
	Id    string `json:"id,omitempty" example:"42"`
}

type DocumentView struct {
	Id            int64      `json:"id" example:"1"`
	Title         string     `json:"title" example:"负载均衡产品介绍"`
	Filename      string     `json:"filename" example:"alb.md"`
	SourceURL     string     `json:"source_url,omitempty"`
	Provider      string     `json:"provider,omitempty" example:"阿里云"`
	Category      string     `json:"category,omitempty" example:"负载均衡"`
	Tags          []string   `json:"tags,omitempty"`
	Status        string     `json:"status" example:"processed"`
	FileSize      int64      `json:"file_size"`
	WordCount     int        `json:"word_count"`
	VectorIndexed bool       `json:"vector_indexed"`
	SearchIndexed bool       `json:"search_indexed"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
}

type DocumentListResponse struct {
	Documents []DocumentView `json:"documents"`
	Total     int            `json:"total"`
	Skip      int            `json:"skip"`
	Limit     int            `json:"limit"`
}

type UploadResponse struct {
	Message    string `json:"message"`
	Filename   string `json:"filename"`
	DocumentId int64  `json:"document_id"`
	Title      string `json:"title"`
	Provider   string `json:"provider"`
	Category   string `json:"category"`
	Size       int64  `json:"size"`
	WordCount  int    `json:"word_count"`
}

type DeleteResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
}

// requests---------------------

type SearchRequest struct {
	Query    string  `json:"query" validate:"required"`
	Limit    int     `json:"limit,omitempty"`
	Offset   int     `json:"offset,omitempty"`
	Source   string  `json:"source,omitempty"`
	Provider string  `json:"provider,omitempty"`
	Category string  `json:"category,omitempty"`
	MinScore float64 `json:"min_score,omitempty"`
}

type QuestionAnswerRequest struct {
	Question       string `json:"question" validate:"required"`
	ContextLimit   int    `json:"context_limit,omitempty"`
	IncludeSources *bool  `json:"include_sources,omitempty"`
	Provider       string `json:"provider,omitempty"`
	Category       string `json:"category,omitempty"`
}

type SummarizeRequest struct {
	DocumentId  int64  `json:"document_id,omitempty"`
	Text        string `json:"text,omitempty"`
	SummaryType string `json:"summary_type,omitempty" example:"brief"`
	MaxLength   int    `json:"max_length,omitempty" example:"200"`
}

// responses--------------------

type QuestionAnswerResponse struct {
	Question       string      `json:"question"`
	Answer         string      `json:"answer"`
	Confidence     float64     `json:"confidence"`
	Sources        []qa.Source `json:"sources"`
	ProcessingTime float64     `json:"processing_time"`
}

type RecommendResponse struct {
	Recommendations []search.Result `json:"recommendations"`
	BaseDocument    string          `json:"base_document,omitempty"`
	ProcessingTime  float64         `json:"processing_time"`
}

type StatsResponse struct {
	VectorStore    *docmodel.CollectionStats `json:"vector_store"`
	TotalDocuments int                       `json:"total_documents"`
	ByStatus       map[string]int            `json:"documents_by_status"`
	LastUpdated    float64                   `json:"last_updated"`
}

type ReindexResponse struct {
	Message   string   `json:"message"`
	Total     int      `json:"total_documents"`
	Succeeded int      `json:"indexed_successfully"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

type SyncMetadataResponse struct {
	Message string `json:"message"`
	Synced  int    `json:"synced_documents"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ComponentHealth struct {
	Status string `json:"status" example:"healthy"`
	Note   string `json:"note,omitempty"`
	Error  string `json:"error,omitempty"`
	Files  int    `json:"files,omitempty"`
}

type HealthResponse struct {
	Status     string                     `json:"status" example:"healthy"`
	Timestamp  float64                    `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}
