package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/cloudnetkb/knowledge-base-api/internal/catalog"
	"github.com/cloudnetkb/knowledge-base-api/internal/config"
	"github.com/cloudnetkb/knowledge-base-api/internal/domain/docmodel"
	"github.com/cloudnetkb/knowledge-base-api/internal/pipeline/embedding"
	"github.com/cloudnetkb/knowledge-base-api/internal/pipeline/processor"
	"github.com/cloudnetkb/knowledge-base-api/internal/pipeline/vectorstore"
	"github.com/cloudnetkb/knowledge-base-api/internal/search"
	"github.com/cloudnetkb/knowledge-base-api/pkg/logger_i"
)

// Indexer composes the processing pipeline with the catalog and vector
// index. It owns the per-document commit protocol: write the catalog
// row, write vectors, then flip both index flags in one catalog write.
type Indexer struct {
	catalog   *catalog.Store
	processor *processor.Processor
	embedder  embedding.Embedder
	index     vectorstore.VectorIndex
	cache     search.ResponseCache
	logger    *logger_i.Logger

	initOnce  sync.Once
	initErr   error
	dimension int
}

// Overrides are caller-supplied metadata that beat extracted values.
type Overrides struct {
	Title    string
	Provider string
	Category string
	Filename string
}

func New(cat *catalog.Store, proc *processor.Processor, embedder embedding.Embedder, index vectorstore.VectorIndex, cache search.ResponseCache) *Indexer {
	return &Indexer{
		catalog:   cat,
		processor: proc,
		embedder:  embedder,
		index:     index,
		cache:     cache,
		logger:    logger_i.NewLogger("Indexer"),
	}
}

// ensureReady probes the embedding dimension once and prepares the
// collection. A probe failure is remembered: every indexing operation
// afterwards reports embedding-unavailable instead of retrying the
// whole init.
func (ix *Indexer) ensureReady(ctx context.Context) error {
	ix.initOnce.Do(func() {
		vectors, err := ix.embedder.BatchEmbedding(ctx, []string{"test"})
		if err != nil {
			ix.initErr = fmt.Errorf("dimension probe failed: %w", err)
			return
		}
		if len(vectors) == 0 || len(vectors[0]) == 0 {
			ix.initErr = fmt.Errorf("%w: probe returned no vector", embedding.ErrUnavailable)
			return
		}
		ix.dimension = len(vectors[0])
		if err := ix.index.EnsureCollection(ctx, ix.dimension); err != nil {
			ix.initErr = fmt.Errorf("collection init failed: %w", err)
			return
		}
		ix.logger.Info("index ready", "dimension", ix.dimension, "model", ix.embedder.ModelName())
	})
	return ix.initErr
}

func chunkKey(documentID int64, chunkIndex int) string {
	return fmt.Sprintf("doc_%d_chunk_%d", documentID, chunkIndex)
}

// UploadDocument stores the raw bytes under
// <documents>/<provider>/<category>/[relative dir]/ and indexes them.
// An upload whose path matches an existing document updates it in
// place. A failed first-time upload is rolled back completely: catalog
// row, file and vectors are all removed.
func (ix *Indexer) UploadDocument(ctx context.Context, filename string, data []byte, relativePath string, overrides Overrides) (*docmodel.Document, error) {
	dir := filepath.Join(config.DocumentsPath, overrides.Provider, overrides.Category)
	if sub := relativeDir(relativePath); sub != "" {
		dir = filepath.Join(dir, sub)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to prepare documents directory: %w", err)
	}
	filePath := filepath.Join(dir, filepath.Base(filename))

	// Uploads from a directory sync carry a relative path; keep it as
	// the catalog filename so same-named files stay distinguishable.
	if clean := strings.Trim(relativePath, "/ "); clean != "" && overrides.Filename == "" {
		overrides.Filename = strings.ReplaceAll(clean, "/", "_")
	}

	existing, err := ix.catalog.GetByFilePath(ctx, filePath)
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return nil, err
	}

	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	doc, err := ix.IndexFile(ctx, filePath, overrides)
	if err != nil {
		if existing == nil {
			ix.rollbackUpload(ctx, filePath)
		}
		return nil, err
	}
	return doc, nil
}

// relativeDir extracts the directory part of a caller-supplied relative
// path, rejecting anything that would escape the documents root.
func relativeDir(relativePath string) string {
	clean := strings.Trim(relativePath, "/ ")
	if clean == "" {
		return ""
	}
	sub := filepath.Dir(filepath.Clean(clean))
	if sub == "." || sub == ".." || strings.HasPrefix(sub, "..") {
		return ""
	}
	return sub
}

// rollbackUpload undoes every trace of a failed upload.
func (ix *Indexer) rollbackUpload(ctx context.Context, filePath string) {
	if doc, err := ix.catalog.GetByFilePath(ctx, filePath); err == nil {
		if err := ix.index.DeleteByDocument(ctx, doc.ID); err != nil {
			ix.logger.Error("rollback: vector cleanup failed", "id", doc.ID, "error", err)
		}
		if err := ix.catalog.Delete(ctx, doc.ID); err != nil {
			ix.logger.Error("rollback: catalog cleanup failed", "id", doc.ID, "error", err)
		}
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		ix.logger.Error("rollback: file cleanup failed", "path", filePath, "error", err)
	}
	ix.logger.Warn("upload rolled back", "path", filePath)
}

// IndexFile processes and indexes one file. An existing catalog row for
// the same path is updated in place; unchanged content already indexed
// is skipped.
func (ix *Indexer) IndexFile(ctx context.Context, filePath string, overrides Overrides) (*docmodel.Document, error) {
	if err := ix.ensureReady(ctx); err != nil {
		return nil, err
	}

	existing, err := ix.catalog.GetByFilePath(ctx, filePath)
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.VectorIndexed &&
		!ix.processor.IsContentChanged(filePath, existing.ContentHash) {
		ix.logger.Debug("content unchanged, skipping", "path", filePath)
		return existing, nil
	}

	processed, err := ix.processor.ProcessFile(filePath)
	if err != nil {
		if existing != nil {
			ix.markFailed(ctx, existing.ID)
		}
		return nil, err
	}
	applyOverrides(processed, overrides)

	return ix.indexProcessed(ctx, processed, existing)
}

// indexProcessed commits an already-processed document: catalog row,
// vectors, then the index flags.
func (ix *Indexer) indexProcessed(ctx context.Context, processed *docmodel.ProcessedDocument, existing *docmodel.Document) (*docmodel.Document, error) {
	doc := buildRow(processed, existing)
	if existing == nil {
		if _, err := ix.catalog.Insert(ctx, doc); err != nil {
			return nil, err
		}
	} else {
		doc.Status = docmodel.StatusProcessing
		if err := ix.catalog.Update(ctx, doc); err != nil {
			return nil, err
		}
	}

	if err := ix.indexChunks(ctx, doc, processed.Chunks); err != nil {
		ix.markFailed(ctx, doc.ID)
		return nil, err
	}

	if err := ix.catalog.SetIndexed(ctx, doc.ID, true); err != nil {
		return nil, err
	}
	ix.cache.Flush(ctx)

	return ix.catalog.GetByID(ctx, doc.ID)
}

func applyOverrides(processed *docmodel.ProcessedDocument, overrides Overrides) {
	if overrides.Title != "" {
		processed.Title = overrides.Title
	}
	if overrides.Filename != "" {
		processed.Filename = overrides.Filename
	}
	if overrides.Provider != "" {
		processed.Metadata.Provider = overrides.Provider
	}
	if overrides.Category != "" {
		processed.Metadata.Category = overrides.Category
	}
}

func buildRow(processed *docmodel.ProcessedDocument, existing *docmodel.Document) *docmodel.Document {
	doc := &docmodel.Document{
		Title:       processed.Title,
		Filename:    processed.Filename,
		FilePath:    processed.FilePath,
		Content:     processed.Content,
		ContentHash: processed.ContentHash,
		SourceURL:   processed.Metadata.SourceURL,
		Provider:    processed.Metadata.Provider,
		Category:    processed.Metadata.Category,
		Tags:        processed.Metadata.Tags,
		Status:      docmodel.StatusPending,
		FileSize:    processed.FileSize,
		WordCount:   processed.Metadata.WordCount,
	}
	if existing != nil {
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
	}
	return doc
}

// indexChunks replaces a document's vectors wholesale: old points are
// deleted before the new batch is added, never partially updated.
func (ix *Indexer) indexChunks(ctx context.Context, doc *docmodel.Document, chunks []docmodel.Chunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("document %d produced no chunks", doc.ID)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := ix.embedder.BatchEmbedding(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedding mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}

	records := make([]vectorstore.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vectorstore.Record{
			ChunkKey: chunkKey(doc.ID, c.ChunkIndex),
			Vector:   vectors[i],
			Content:  c.Content,
			Metadata: docmodel.VectorMetadata{
				DocumentID: doc.ID,
				ChunkIndex: c.ChunkIndex,
				Title:      doc.Title,
				Provider:   doc.Provider,
				Category:   doc.Category,
				SourceURL:  doc.SourceURL,
				Filename:   doc.Filename,
				StartPos:   c.StartPos,
				EndPos:     c.EndPos,
				WordCount:  c.WordCount,
			},
		}
	}

	if err := ix.index.DeleteByDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("failed to clear old vectors: %w", err)
	}
	if err := ix.index.Add(ctx, records); err != nil {
		return fmt.Errorf("failed to add vectors: %w", err)
	}
	return nil
}

func (ix *Indexer) markFailed(ctx context.Context, id int64) {
	if err := ix.catalog.SetIndexed(ctx, id, false); err != nil {
		ix.logger.Error("failed to mark document failed", "id", id, "error", err)
	}
}

// DeleteDocument removes vectors, the catalog row, and optionally the
// file on disk.
func (ix *Indexer) DeleteDocument(ctx context.Context, id int64, removeFile bool) error {
	doc, err := ix.catalog.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := ix.index.DeleteByDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to delete vectors of document %d: %w", id, err)
	}
	if err := ix.catalog.Delete(ctx, id); err != nil {
		return err
	}
	if removeFile {
		if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
			ix.logger.Error("failed to remove file", "path", doc.FilePath, "error", err)
		}
	}
	ix.cache.Flush(ctx)

	ix.logger.Info("document deleted", "id", id, "path", doc.FilePath)
	return nil
}

// ReindexDocument re-runs the full pipeline for one catalog entry.
func (ix *Indexer) ReindexDocument(ctx context.Context, id int64) (*docmodel.Document, error) {
	doc, err := ix.catalog.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// Force a full rebuild even when the content hash is unchanged.
	if doc.VectorIndexed {
		if err := ix.catalog.ClearIndexed(ctx, id); err != nil {
			return nil, err
		}
	}
	return ix.IndexFile(ctx, doc.FilePath, Overrides{})
}

// ReindexReport summarizes a bulk reindex sweep.
type ReindexReport struct {
	Total   int      `json:"total"`
	Succeed int      `json:"succeeded"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// ReindexAll sweeps every catalog row, paced so a large knowledge base
// cannot saturate the embedding quota. Failures are collected, not
// fatal; the sweep always visits every document.
func (ix *Indexer) ReindexAll(ctx context.Context) (*ReindexReport, error) {
	if err := ix.ensureReady(ctx); err != nil {
		return nil, err
	}

	docs, err := ix.catalog.All(ctx)
	if err != nil {
		return nil, err
	}

	limiter := rate.NewLimiter(rate.Limit(config.ReindexDocsPerSecond), config.ReindexBurst)
	report := &ReindexReport{Total: len(docs)}
	for _, doc := range docs {
		if err := limiter.Wait(ctx); err != nil {
			return report, err
		}
		if _, err := ix.ReindexDocument(ctx, doc.ID); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("document %d: %v", doc.ID, err))
			ix.logger.Error("reindex failed", "id", doc.ID, "error", err)
			continue
		}
		report.Succeed++
	}

	ix.logger.Info("bulk reindex complete", "total", report.Total,
		"succeeded", report.Succeed, "failed", report.Failed)
	return report, nil
}

// IngestDirectory indexes every supported file under dir in one sweep,
// paced like ReindexAll. Broken files are skipped by the processor;
// documents whose content is unchanged and already indexed count as
// succeeded without being re-embedded.
func (ix *Indexer) IngestDirectory(ctx context.Context, dir string) (*ReindexReport, error) {
	if err := ix.ensureReady(ctx); err != nil {
		return nil, err
	}

	processed, err := ix.processor.ProcessDirectory(dir)
	if err != nil {
		return nil, err
	}

	limiter := rate.NewLimiter(rate.Limit(config.ReindexDocsPerSecond), config.ReindexBurst)
	report := &ReindexReport{Total: len(processed)}
	for _, pd := range processed {
		if err := limiter.Wait(ctx); err != nil {
			return report, err
		}
		existing, err := ix.catalog.GetByFilePath(ctx, pd.FilePath)
		if err != nil && !errors.Is(err, catalog.ErrNotFound) {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", pd.FilePath, err))
			continue
		}
		if existing != nil && existing.VectorIndexed && existing.ContentHash == pd.ContentHash {
			report.Succeed++
			continue
		}
		if _, err := ix.indexProcessed(ctx, pd, existing); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", pd.FilePath, err))
			ix.logger.Error("ingest failed", "path", pd.FilePath, "error", err)
			continue
		}
		report.Succeed++
	}

	ix.logger.Info("directory ingestion complete", "dir", dir,
		"total", report.Total, "succeeded", report.Succeed, "failed", report.Failed)
	return report, nil
}

// SyncMetadata repairs vector payload drift: the catalog is the source
// of truth for provider/category, so every indexed document's chunks are
// rewritten from its row. Returns the number of documents touched.
func (ix *Indexer) SyncMetadata(ctx context.Context) (int, error) {
	docs, err := ix.catalog.All(ctx)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, doc := range docs {
		if !doc.VectorIndexed {
			continue
		}
		if err := ix.index.UpdateDocumentMetadata(ctx, doc.ID, doc.Provider, doc.Category); err != nil {
			ix.logger.Error("metadata sync failed", "id", doc.ID, "error", err)
			continue
		}
		synced++
	}
	ix.cache.Flush(ctx)

	ix.logger.Info("metadata sync complete", "documents", synced)
	return synced, nil
}

// ResetCollection drops and recreates the vector collection and clears
// every index flag in the catalog.
func (ix *Indexer) ResetCollection(ctx context.Context) error {
	if err := ix.ensureReady(ctx); err != nil {
		return err
	}
	if err := ix.index.Reset(ctx, ix.dimension); err != nil {
		return err
	}

	docs, err := ix.catalog.All(ctx)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if doc.VectorIndexed {
			if err := ix.catalog.ClearIndexed(ctx, doc.ID); err != nil {
				ix.logger.Error("failed to clear index flags", "id", doc.ID, "error", err)
			}
		}
	}
	ix.cache.Flush(ctx)
	return nil
}
