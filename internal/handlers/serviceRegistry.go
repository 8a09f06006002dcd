package handlers

import (
	"sync"

	"github.com/cloudnetkb/knowledge-base-api/internal/a2a"
	"github.com/cloudnetkb/knowledge-base-api/internal/catalog"
	"github.com/cloudnetkb/knowledge-base-api/internal/pipeline/indexer"
	"github.com/cloudnetkb/knowledge-base-api/internal/pipeline/vectorstore"
	"github.com/cloudnetkb/knowledge-base-api/internal/qa"
	"github.com/cloudnetkb/knowledge-base-api/internal/search"
	"github.com/cloudnetkb/knowledge-base-api/pkg/logger_i"
)

var (
	registry  *serviceRegistry //private singleton
	once      sync.Once
	logKH     *logger_i.Logger
	logAH     *logger_i.Logger
	agentCard a2a.AgentCard
)

type serviceRegistry struct {
	catalog  *catalog.Store
	indexer  *indexer.Indexer
	engine   *search.Engine
	qa       *qa.Service
	cache    search.ResponseCache
	index    vectorstore.VectorIndex
	embedder string //model name, for stats
}

type Services struct {
	Catalog       *catalog.Store
	Indexer       *indexer.Indexer
	Engine        *search.Engine
	QA            *qa.Service
	Cache         search.ResponseCache
	Index         vectorstore.VectorIndex
	EmbedderModel string
	AgentCard     a2a.AgentCard
}

func InitServices(services Services) {
	once.Do(func() {
		registry = &serviceRegistry{
			catalog:  services.Catalog,
			indexer:  services.Indexer,
			engine:   services.Engine,
			qa:       services.QA,
			cache:    services.Cache,
			index:    services.Index,
			embedder: services.EmbedderModel,
		}
		agentCard = services.AgentCard

		logKH = logger_i.NewLogger("KnowledgeHandler")
		logAH = logger_i.NewLogger("AdminHandler")
		logKH.Info("Handlers wired to services")
	})
}
