package server

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/cloudnetkb/knowledge-base-api/internal/a2a"
	"github.com/cloudnetkb/knowledge-base-api/internal/adapter/utils"
	"github.com/cloudnetkb/knowledge-base-api/internal/config"
	"github.com/cloudnetkb/knowledge-base-api/internal/middleware"
	"github.com/cloudnetkb/knowledge-base-api/pkg/logger_i"
)

var (
	server  *http.Server
	_logger *logger_i.Logger
)

type ShutdownParams struct {
	GracefulShutdown chan os.Signal
	StopExecution    chan bool
	CloseServices    context.CancelFunc
}

func CreateServer(listenAddr string, agent *a2a.Agent) {
	_logger = logger_i.NewLogger("Server")

	r := utils.GetRouter()

	r.Router.Get("/", middleware.GetHandler)

	r.Router.Get("/api/v1/knowledge/search", middleware.SearchHandler)
	r.Router.Post("/api/v1/knowledge/search", middleware.SearchPostHandler)
	r.Router.Post("/api/v1/knowledge/qa", middleware.QAHandler)
	r.Router.Post("/api/v1/knowledge/summarize", middleware.SummarizeHandler)
	r.Router.Get("/api/v1/knowledge/recommend", middleware.RecommendHandler)
	r.Router.Get("/api/v1/knowledge/stats", middleware.StatsHandler)

	r.Router.Get("/api/v1/admin/documents", middleware.ListDocumentsHandler)
	r.Router.Post("/api/v1/admin/documents/upload", middleware.UploadDocumentHandler)
	r.Router.Post("/api/v1/admin/documents/scan", middleware.ScanDocumentsHandler)
	r.Router.Get("/api/v1/admin/documents/{id}", middleware.GetDocumentHandler)
	r.Router.Delete("/api/v1/admin/documents/{id}", middleware.DeleteDocumentHandler)
	r.Router.Post("/api/v1/admin/documents/{id}/reindex", middleware.ReindexDocumentHandler)
	r.Router.Post("/api/v1/admin/reindex", middleware.ReindexAllHandler)
	r.Router.Post("/api/v1/admin/sync-metadata", middleware.SyncMetadataHandler)
	r.Router.Post("/api/v1/admin/reset", middleware.ResetCollectionHandler)
	r.Router.Get("/api/v1/admin/health", middleware.HealthHandler)
	r.Router.Get("/api/v1/admin/metrics", middleware.StatsHandler)

	//agent-to-agent surface: card for discovery, MCP for the tools
	r.Router.Route("/api/v1/a2a", func(ar chi.Router) {
		ar.Get("/card", middleware.AgentCardHandler)
		ar.Handle("/", agent.Handler())
		ar.Handle("/*", agent.Handler())
	})

	server = &http.Server{
		Addr:         listenAddr,
		Handler:      r.Router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	_logger.Info("Server is listening at", "address", listenAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		_logger.Error("Server crashed", "error :", err.Error(), "addr", listenAddr)
	}
}

func ShutDownHandler(shutdownParams ShutdownParams) {
	state := <-shutdownParams.GracefulShutdown
	println("\nServer is shutting down", state)

	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownContextTimeout)
	defer cancel()

	done := make(chan struct{})

	go func() {
		server.SetKeepAlivesEnabled(false)

		if err := server.Shutdown(ctx); err != nil {
			_logger.Error("Could not shutdown gracefully: %s", err)
		}

		shutdownParams.CloseServices()
		close(shutdownParams.StopExecution)
		close(done)
	}()

	select {
	case <-done:
		_logger.Info("Gracefully is shutting down")
	case <-ctx.Done():
		_logger.Info("Force Shut down")
		os.Exit(1)
	}
}
