// @title           Knowledge Base API
// @version         1.0
// @description     Document indexing and semantic retrieval over cloud product documentation.
// @termsOfService  http://swagger.io/terms/

// @contact.name    API Support
// @contact.url
// @contact.email

// @license.name    Apache 2.0
// @license.url     http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8000
// @BasePath  /
// @schemes   http https
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudnetkb/knowledge-base-api/internal/a2a"
	"github.com/cloudnetkb/knowledge-base-api/internal/catalog"
	"github.com/cloudnetkb/knowledge-base-api/internal/config"
	"github.com/cloudnetkb/knowledge-base-api/internal/handlers"
	"github.com/cloudnetkb/knowledge-base-api/internal/pipeline/embedding"
	"github.com/cloudnetkb/knowledge-base-api/internal/pipeline/embedding/googleEmbedding"
	"github.com/cloudnetkb/knowledge-base-api/internal/pipeline/embedding/openaiEmbedding"
	"github.com/cloudnetkb/knowledge-base-api/internal/pipeline/indexer"
	"github.com/cloudnetkb/knowledge-base-api/internal/pipeline/processor"
	"github.com/cloudnetkb/knowledge-base-api/internal/pipeline/vectorstore"
	"github.com/cloudnetkb/knowledge-base-api/internal/qa"
	"github.com/cloudnetkb/knowledge-base-api/internal/search"
	"github.com/cloudnetkb/knowledge-base-api/internal/server"
	"github.com/cloudnetkb/knowledge-base-api/pkg/logger_i"
)

var listenAddr string

func main() {

	logger_i.Init(config.IS_PROD, config.LOG_LEVEL_PROD)
	var logger = logger_i.NewLogger("main")

	//config
	flag.StringVar(&listenAddr, "listen-addr", config.ServerListenAddr, "server listen address")
	flag.Parse()

	serviceContext, closeExternalServices := context.WithCancel(context.Background())
	defer closeExternalServices()

	//catalog is the source of truth; without it nothing else matters
	catalogStore, err := catalog.New(config.DatabasePath)
	if err != nil {
		logger.Error("Catalog init failed. Shutting down.", "error", err)
		return
	}
	defer catalogStore.Close()

	var embedder embedding.Embedder
	switch config.EmbeddingProvider {
	case "openai":
		embedder = openaiEmbedding.GetOpenAIEmbeddingClient(serviceContext)
	default:
		embedder = googleEmbedding.GetGoogleEmbeddingClient(serviceContext)
	}
	if embedder == nil {
		logger.Error("Embedding provider failed to initialize. Shutting down.", "provider", config.EmbeddingProvider)
		return
	}

	var index vectorstore.VectorIndex
	if qdrantIndex := vectorstore.GetQdrantIndex(serviceContext); qdrantIndex != nil {
		index = qdrantIndex
	} else {
		logger.Error("Qdrant is offline, falling back to the in-memory index")
		index = vectorstore.NewMemoryIndex()
	}

	var cache search.ResponseCache
	if redisCache := search.GetRedisResponseCache(serviceContext); redisCache != nil {
		cache = redisCache
	} else {
		logger.Error("Redis is offline, falling back to the in-memory cache")
		cache = search.NewMemoryResponseCache()
	}

	proc, err := processor.New()
	if err != nil {
		logger.Error("Processor init failed. Shutting down.", "error", err)
		return
	}

	engine := search.NewEngine(embedder, index)
	indexService := indexer.New(catalogStore, proc, embedder, index, cache)
	qaService := qa.New(engine)
	agent := a2a.NewAgent(engine, index)

	handlers.InitServices(handlers.Services{
		Catalog:       catalogStore,
		Indexer:       indexService,
		Engine:        engine,
		QA:            qaService,
		Cache:         cache,
		Index:         index,
		EmbedderModel: embedder.ModelName(),
		AgentCard:     agent.Card(),
	})

	//server handling
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)
	stopExecution := make(chan bool, 1)

	shutdownParams := server.ShutdownParams{
		GracefulShutdown: gracefulShutdown,
		StopExecution:    stopExecution,
		CloseServices:    closeExternalServices,
	}
	go server.ShutDownHandler(shutdownParams)
	go server.CreateServer(listenAddr, agent)

	<-stopExecution
	logger.Info("Server stopped")
}
