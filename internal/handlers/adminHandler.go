package handlers

import (
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cloudnetkb/knowledge-base-api/internal/adapter"
	"github.com/cloudnetkb/knowledge-base-api/internal/api"
	"github.com/cloudnetkb/knowledge-base-api/internal/catalog"
	"github.com/cloudnetkb/knowledge-base-api/internal/config"
	"github.com/cloudnetkb/knowledge-base-api/internal/domain/docmodel"
	"github.com/cloudnetkb/knowledge-base-api/internal/metrics"
	"github.com/cloudnetkb/knowledge-base-api/internal/pipeline/indexer"
)

// ListDocumentsHandler godoc
// @Summary      List catalog documents
// @Description  Paged document listing with provider, category and status filters.
// @Tags         Admin
// @Produce      json
// @Param        skip      query  int     false  "Documents to skip"
// @Param        limit     query  int     false  "Page size (default 100)"
// @Param        provider  query  string  false  "Filter by provider"
// @Param        category  query  string  false  "Filter by category"
// @Param        status    query  string  false  "Filter by status (pending/processing/processed/failed)"
// @Success      200  {object}  api.DocumentListResponse
// @Failure      500  {object}  api.ErrorResponse
// @Router       /api/v1/admin/documents [get]
func ListDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		logAH.Warn("Invalid Context by request ", r.RemoteAddr)
		return
	}

	opts := catalog.ListOptions{
		Skip:     queryInt(r, "skip", 0),
		Limit:    queryInt(r, "limit", 100),
		Provider: r.URL.Query().Get("provider"),
		Category: r.URL.Query().Get("category"),
		Status:   docmodel.DocumentStatus(r.URL.Query().Get("status")),
	}

	docs, total, err := registry.catalog.List(r.Context(), opts)
	if err != nil {
		logAH.Error("Document listing failed", "error", err)
		WriteErrorResponse(w, http.StatusInternalServerError, "", "Failed to list documents")
		return
	}

	writeJsonResponse(w, http.StatusOK, adapter.ToDocumentListResponse(docs, total, opts.Skip, opts.Limit))
}

// GetDocumentHandler godoc
// @Summary      Get one document
// @Tags         Admin
// @Produce      json
// @Param        id   path      int  true  "Document ID"
// @Success      200  {object}  api.DocumentView
// @Failure      404  {object}  api.ErrorResponse
// @Router       /api/v1/admin/documents/{id} [get]
func GetDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		logAH.Warn("Invalid Context by request ", r.RemoteAddr)
		return
	}

	id, ok := pathID(r, "id")
	if !ok {
		WriteErrorResponse(w, http.StatusBadRequest, "", "invalid document id")
		return
	}

	doc, err := registry.catalog.GetByID(r.Context(), id)
	if err != nil {
		WriteErrorResponse(w, http.StatusNotFound, "", "Document not found")
		return
	}
	writeJsonResponse(w, http.StatusOK, adapter.ToDocumentView(doc))
}

// UploadDocumentHandler godoc
// @Summary      Upload a document
// @Description  Receives a file via multipart/form-data, stores it under the documents root, and indexes it. Failed uploads are rolled back completely.
// @Tags         Admin
// @Accept       multipart/form-data
// @Produce      json
// @Param        file           formData  file    true   "Document file (.md, .txt, .pdf, .docx, .rtf, .odt)"
// @Param        provider       formData  string  true   "Cloud provider"
// @Param        category       formData  string  true   "Product category"
// @Param        title          formData  string  false  "Title override"
// @Param        relative_path  formData  string  false  "Relative path under the provider/category directory"
// @Success      201  {object}  api.UploadResponse
// @Failure      400  {object}  api.ErrorResponse
// @Failure      500  {object}  api.ErrorResponse
// @Router       /api/v1/admin/documents/upload [post]
func UploadDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		logAH.Warn("Invalid Context by request ", r.RemoteAddr)
		return
	}

	if err := r.ParseMultipartForm(config.MaxUploadSize); err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, "", "File too large or bad request")
		return
	}

	fileReader, fileMetadata, err := r.FormFile("file")
	if err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, "", "Could not retrieve file")
		return
	}
	defer fileReader.Close()

	data, err := io.ReadAll(io.LimitReader(fileReader, config.MaxUploadSize+1))
	if err != nil {
		WriteErrorResponse(w, http.StatusInternalServerError, "", "Read error")
		return
	}
	if int64(len(data)) > config.MaxUploadSize {
		WriteErrorResponse(w, http.StatusBadRequest, "", "File too large")
		return
	}

	overrides := indexer.Overrides{
		Title:    r.FormValue("title"),
		Provider: r.FormValue("provider"),
		Category: r.FormValue("category"),
	}
	if overrides.Provider == "" || overrides.Category == "" {
		WriteErrorResponse(w, http.StatusBadRequest, "", "provider and category are required")
		return
	}

	start := time.Now()
	doc, err := registry.indexer.UploadDocument(r.Context(), fileMetadata.Filename, data, r.FormValue("relative_path"), overrides)
	metrics.CaptureExecutionMetrics("indexing", time.Since(start))
	if err != nil {
		logAH.Error("Upload failed", "filename", fileMetadata.Filename, "error", err)
		WriteErrorResponse(w, http.StatusInternalServerError, "", "Upload failed: "+err.Error())
		return
	}
	metrics.IncrementDocumentsIndexed()

	writeJsonResponse(w, http.StatusCreated, adapter.ToUploadResponse(doc))
}

// DeleteDocumentHandler godoc
// @Summary      Delete a document
// @Description  Removes the vectors, the catalog row and the file on disk.
// @Tags         Admin
// @Produce      json
// @Param        id   path      int  true  "Document ID"
// @Success      200  {object}  api.DeleteResponse
// @Failure      404  {object}  api.ErrorResponse
// @Failure      500  {object}  api.ErrorResponse
// @Router       /api/v1/admin/documents/{id} [delete]
func DeleteDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		logAH.Warn("Invalid Context by request ", r.RemoteAddr)
		return
	}

	id, ok := pathID(r, "id")
	if !ok {
		WriteErrorResponse(w, http.StatusBadRequest, "", "invalid document id")
		return
	}

	doc, err := registry.catalog.GetByID(r.Context(), id)
	if err != nil {
		WriteErrorResponse(w, http.StatusNotFound, "", "Document not found")
		return
	}

	if err := registry.indexer.DeleteDocument(r.Context(), id, true); err != nil {
		logAH.Error("Delete failed", "id", id, "error", err)
		WriteErrorResponse(w, http.StatusInternalServerError, "", "Failed to delete document")
		return
	}

	writeJsonResponse(w, http.StatusOK, api.DeleteResponse{
		Message:  "Document deleted successfully",
		Filename: doc.Filename,
	})
}

// ReindexDocumentHandler godoc
// @Summary      Reindex one document
// @Description  Re-runs the full processing pipeline for a single catalog entry, even if unchanged.
// @Tags         Admin
// @Produce      json
// @Param        id   path      int  true  "Document ID"
// @Success      200  {object}  api.DocumentView
// @Failure      404  {object}  api.ErrorResponse
// @Failure      500  {object}  api.ErrorResponse
// @Router       /api/v1/admin/documents/{id}/reindex [post]
func ReindexDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		logAH.Warn("Invalid Context by request ", r.RemoteAddr)
		return
	}

	id, ok := pathID(r, "id")
	if !ok {
		WriteErrorResponse(w, http.StatusBadRequest, "", "invalid document id")
		return
	}

	doc, err := registry.indexer.ReindexDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			WriteErrorResponse(w, http.StatusNotFound, "", "Document not found")
			return
		}
		logAH.Error("Reindex failed", "id", id, "error", err)
		WriteErrorResponse(w, http.StatusInternalServerError, "", "Reindexing failed")
		return
	}
	metrics.IncrementDocumentsIndexed()

	writeJsonResponse(w, http.StatusOK, adapter.ToDocumentView(doc))
}

// ReindexAllHandler godoc
// @Summary      Reindex every document
// @Description  Rate-limited sweep over the whole catalog. Per-document failures are reported, not fatal.
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  api.ReindexResponse
// @Failure      500  {object}  api.ErrorResponse
// @Router       /api/v1/admin/reindex [post]
func ReindexAllHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		logAH.Warn("Invalid Context by request ", r.RemoteAddr)
		return
	}

	report, err := registry.indexer.ReindexAll(r.Context())
	if err != nil {
		logAH.Error("Bulk reindex failed", "error", err)
		WriteErrorResponse(w, http.StatusInternalServerError, "", "Reindexing failed")
		return
	}

	writeJsonResponse(w, http.StatusOK, api.ReindexResponse{
		Message:   "Reindexing completed",
		Total:     report.Total,
		Succeeded: report.Succeed,
		Failed:    report.Failed,
		Errors:    report.Errors,
	})
}

// ScanDocumentsHandler godoc
// @Summary      Ingest the documents directory
// @Description  Walks the documents root and indexes every supported file. Already-indexed unchanged files are skipped; broken files are reported, not fatal.
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  api.ReindexResponse
// @Failure      500  {object}  api.ErrorResponse
// @Router       /api/v1/admin/documents/scan [post]
func ScanDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		logAH.Warn("Invalid Context by request ", r.RemoteAddr)
		return
	}

	start := time.Now()
	report, err := registry.indexer.IngestDirectory(r.Context(), config.DocumentsPath)
	metrics.CaptureExecutionMetrics("indexing", time.Since(start))
	if err != nil {
		logAH.Error("Directory ingestion failed", "error", err)
		WriteErrorResponse(w, http.StatusInternalServerError, "", "Directory ingestion failed")
		return
	}

	writeJsonResponse(w, http.StatusOK, api.ReindexResponse{
		Message:   "Directory ingestion completed",
		Total:     report.Total,
		Succeeded: report.Succeed,
		Failed:    report.Failed,
		Errors:    report.Errors,
	})
}

// SyncMetadataHandler godoc
// @Summary      Sync vector metadata from the catalog
// @Description  Rewrites provider/category payloads of every indexed document from its catalog row.
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  api.SyncMetadataResponse
// @Failure      500  {object}  api.ErrorResponse
// @Router       /api/v1/admin/sync-metadata [post]
func SyncMetadataHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		logAH.Warn("Invalid Context by request ", r.RemoteAddr)
		return
	}

	synced, err := registry.indexer.SyncMetadata(r.Context())
	if err != nil {
		logAH.Error("Metadata sync failed", "error", err)
		WriteErrorResponse(w, http.StatusInternalServerError, "", "Metadata sync failed")
		return
	}

	writeJsonResponse(w, http.StatusOK, api.SyncMetadataResponse{
		Message: "Metadata sync completed",
		Synced:  synced,
	})
}

// ResetCollectionHandler godoc
// @Summary      Reset the vector collection
// @Description  Drops and recreates the collection and clears all catalog index flags. Destructive.
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  api.MessageResponse
// @Failure      500  {object}  api.ErrorResponse
// @Router       /api/v1/admin/reset [post]
func ResetCollectionHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		logAH.Warn("Invalid Context by request ", r.RemoteAddr)
		return
	}

	if err := registry.indexer.ResetCollection(r.Context()); err != nil {
		logAH.Error("Collection reset failed", "error", err)
		WriteErrorResponse(w, http.StatusInternalServerError, "", "Reset failed")
		return
	}

	writeJsonResponse(w, http.StatusOK, api.MessageResponse{Message: "Collection reset completed"})
}

// HealthHandler godoc
// @Summary      System health check
// @Description  Reports the state of the vector store, catalog and document storage.
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  api.HealthResponse
// @Router       /api/v1/admin/health [get]
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		logAH.Warn("Invalid Context by request ", r.RemoteAddr)
		return
	}

	components := map[string]api.ComponentHealth{}
	healthy := true

	if _, err := registry.index.Count(r.Context()); err != nil {
		components["vector_store"] = api.ComponentHealth{Status: "unhealthy", Error: err.Error()}
		healthy = false
	} else {
		components["vector_store"] = api.ComponentHealth{Status: "healthy"}
	}

	if _, _, err := registry.catalog.Counts(r.Context()); err != nil {
		components["catalog"] = api.ComponentHealth{Status: "unhealthy", Error: err.Error()}
		healthy = false
	} else {
		components["catalog"] = api.ComponentHealth{Status: "healthy"}
	}

	storage := api.ComponentHealth{Status: "healthy"}
	entries, err := os.ReadDir(config.DocumentsPath)
	if err != nil {
		storage = api.ComponentHealth{Status: "unhealthy", Error: "Documents directory not found"}
		healthy = false
	} else {
		storage.Files = len(entries)
	}
	components["document_storage"] = storage

	engineHealth := api.ComponentHealth{Status: "healthy", Note: "Qdrant + " + registry.embedder}
	if !healthy {
		engineHealth = api.ComponentHealth{Status: "unhealthy", Note: "Vector store or catalog unavailable"}
	}
	components["search_engine"] = engineHealth

	status := "healthy"
	if !healthy {
		status = "degraded"
	}

	writeJsonResponse(w, http.StatusOK, api.HealthResponse{
		Status:     status,
		Timestamp:  float64(time.Now().UnixMilli()) / 1000,
		Components: components,
	})
}

// AgentCardHandler godoc
// @Summary      A2A agent card
// @Description  Advertises the agent's capabilities for peer-agent discovery.
// @Tags         A2A
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/a2a/card [get]
func AgentCardHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		logAH.Warn("Invalid Context by request ", r.RemoteAddr)
		return
	}
	writeJsonResponse(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"agent_card": agentCard,
		"timestamp":  float64(time.Now().UnixMilli()) / 1000,
	})
}

// GetHandler is the root liveness probe.
func GetHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
