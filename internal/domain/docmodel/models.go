package docmodel

import "time"

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusProcessed  DocumentStatus = "processed"
	StatusFailed     DocumentStatus = "failed"
)

// KnownProviders is the closed set of cloud vendors the extractor may assign.
// Order matters: content sniffing checks them in this priority.
var KnownProviders = []string{"阿里云", "腾讯云", "GCP", "Azure", "AWS", "华为云", "火山云"}

func IsKnownProvider(p string) bool {
	for _, known := range KnownProviders {
		if p == known {
			return true
		}
	}
	return false
}

// Metadata is the closed per-document metadata schema. Empty strings and
// zero counts mean "not detected"; extraction never fails, it just omits.
type Metadata struct {
	Provider    string   `json:"provider,omitempty"`
	Category    string   `json:"category,omitempty"`
	SourceURL   string   `json:"source_url,omitempty"`
	ConvertedAt string   `json:"converted_at,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	WordCount   int      `json:"word_count"`
	CharCount   int      `json:"char_count"`
}

// Chunk is the atomic unit of embedding and retrieval. Offsets are
// best-effort: the recursive splitter reports approximate positions.
type Chunk struct {
	Content    string `json:"content"`
	ChunkIndex int    `json:"chunk_index"`
	StartPos   int    `json:"start_pos"`
	EndPos     int    `json:"end_pos"`
	WordCount  int    `json:"word_count"`
}

// ProcessedDocument is the transient output of the document processor,
// consumed by the indexing orchestrator and discarded.
type ProcessedDocument struct {
	Title       string
	Content     string
	Metadata    Metadata
	Chunks      []Chunk
	ContentHash string
	Filename    string
	FilePath    string
	FileSize    int64
	CreatedAt   time.Time
	ModifiedAt  time.Time
}

// Document is the catalog row. The catalog is the source of truth for
// provider/category; vector payloads are kept consistent with it.
type Document struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	Filename    string         `json:"filename"`
	FilePath    string         `json:"file_path"`
	Content     string         `json:"-"`
	ContentHash string         `json:"content_hash,omitempty"`
	SourceURL   string         `json:"source_url,omitempty"`
	Provider    string         `json:"provider,omitempty"`
	Category    string         `json:"category,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Status      DocumentStatus `json:"status"`
	FileSize    int64          `json:"file_size"`
	WordCount   int            `json:"word_count"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty"`

	// Search runs purely over the vector index, so the two flags are
	// kept in lockstep; both are flipped in the same catalog write.
	VectorIndexed bool `json:"vector_indexed"`
	SearchIndexed bool `json:"search_indexed"`
}

// VectorMetadata is the payload snapshot stored next to each embedding.
type VectorMetadata struct {
	DocumentID int64  `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
	Title      string `json:"title"`
	Provider   string `json:"provider"`
	Category   string `json:"category"`
	SourceURL  string `json:"source_url"`
	Filename   string `json:"filename"`
	StartPos   int    `json:"start_pos"`
	EndPos     int    `json:"end_pos"`
	WordCount  int    `json:"word_count"`
}

// ScoredChunk is one nearest-neighbour hit before response formatting.
type ScoredChunk struct {
	ChunkID  string
	Content  string
	Metadata VectorMetadata
	Distance float64
	Score    float64
}

// SearchFilters compose with AND semantics; empty fields are ignored.
type SearchFilters struct {
	Provider string
	Category string
	Filename string
}

func (f SearchFilters) IsZero() bool {
	return f.Provider == "" && f.Category == "" && f.Filename == ""
}

// CollectionStats aggregates the vector index contents.
type CollectionStats struct {
	TotalChunks          int                      `json:"total_chunks"`
	Providers            []string                 `json:"providers"`
	Categories           []string                 `json:"categories"`
	ProviderDistribution map[string]ProviderShare `json:"provider_distribution"`
	CategoryDistribution map[string]int           `json:"category_distribution"`
	EmbeddingModel       string                   `json:"embedding_model"`
	CollectionName       string                   `json:"collection_name"`
}

type ProviderShare struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}
