package config

import (
	"log/slog"
	"time"
)

const (
	IS_PROD        = false
	LOG_LEVEL_PROD = slog.LevelInfo
	TRACE_ID_KEY   = "traceId"

	AppName    = "云产品文档知识库"
	AppVersion = "1.0.0"

	//server listening port
	ServerListenAddr = ":8000"

	//serverTimeouts
	ReadTimeout            = 5 * time.Second
	WriteTimeout           = 30 * time.Second
	IdleTimeout            = 120 * time.Second
	ShutdownContextTimeout = 10 * time.Second

	//storage layout
	DatabasePath  = "./data/app.db"
	DocumentsPath = "./data/documents"

	//document processing
	DocumentChunkSize    = 1000 //characters
	DocumentChunkOverlap = 200  //characters
	MaxUploadSize        = 32 << 20

	//vector store
	CollectionName          = "knowledge_base"
	QdrantHost              = "127.0.0.1"
	QdrantGrpcPort          = 6334
	QdrantUseTLS            = false
	QdrantPoolSize          = 1
	QdrantConnectionTimeout = 30 * time.Second

	//embeddings
	EmbeddingProvider     = "google" // "google" or "openai"
	GoogleEmbeddingModel  = "gemini-embedding-001"
	OpenAIEmbeddingModel  = "text-embedding-3-small"
	EmbeddingBatchSize    = 100
	EmbeddingRetryBackoff = 5 * time.Second
	// Asymmetric retrieval: only the query side carries this instruction.
	QueryInstruction = "为这个句子生成表示以用于检索相关文章："

	//retrieval scoring
	// score = exp(-0.5 * d^2) over L2 distance; tuned for recall, keep in
	// sync with the documented decay table before changing.
	ScoreDecayCoefficient = 0.5
	MinScoreThreshold     = 0.1
	MaxDisplayLength      = 500
	MaxSearchLimit        = 100

	//a2a search
	A2ADefaultLimit    = 5
	A2ADefaultMinScore = 0.3
	A2AMaxLimit        = 50
	A2AMaxQueryLength  = 500

	//bulk reindex pacing, documents per second
	ReindexDocsPerSecond = 2
	ReindexBurst         = 1

	//redis search cache
	redisHost      = "127.0.0.1"
	redisPort      = "6379"
	RedisAddr      = redisHost + ":" + redisPort
	RedisCacheDB   = 0
	SearchCacheTTL = 10 * time.Minute
)
