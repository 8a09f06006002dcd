package processor

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudnetkb/knowledge-base-api/internal/config"
	"github.com/cloudnetkb/knowledge-base-api/internal/domain/docmodel"
	"github.com/cloudnetkb/knowledge-base-api/internal/pipeline/chunker"
	"github.com/cloudnetkb/knowledge-base-api/internal/pipeline/extract"
	"github.com/cloudnetkb/knowledge-base-api/pkg/logger_i"
)

// Processor turns a file on disk into a ProcessedDocument ready for
// embedding: loaded content, extracted metadata, ordered chunks, hash.
type Processor struct {
	splitter *chunker.Splitter
	logger   *logger_i.Logger
}

func New() (*Processor, error) {
	splitter, err := chunker.New(config.DocumentChunkSize, config.DocumentChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("failed to build splitter: %w", err)
	}
	return &Processor{
		splitter: splitter,
		logger:   logger_i.NewLogger("Document Processor"),
	}, nil
}

// NewWithLimits is the test seam for small chunk budgets.
func NewWithLimits(chunkSize, chunkOverlap int) (*Processor, error) {
	splitter, err := chunker.New(chunkSize, chunkOverlap)
	if err != nil {
		return nil, err
	}
	return &Processor{
		splitter: splitter,
		logger:   logger_i.NewLogger("Document Processor"),
	}, nil
}

func (p *Processor) ProcessFile(filePath string) (*docmodel.ProcessedDocument, error) {
	content, err := extract.LoadContent(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", filePath, err)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("no content loaded from %s", filePath)
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", filePath, err)
	}

	doc := p.processContent(content, filePath)
	doc.FileSize = info.Size()
	doc.ModifiedAt = info.ModTime()

	p.logger.Debug("processed file", "path", filePath, "chunks", len(doc.Chunks))
	return doc, nil
}

func (p *Processor) processContent(content, filePath string) *docmodel.ProcessedDocument {
	now := time.Now()
	return &docmodel.ProcessedDocument{
		Title:       extract.ExtractTitle(content, filePath),
		Content:     content,
		Metadata:    extract.ExtractMetadata(content, filePath),
		Chunks:      p.splitter.Split(content),
		ContentHash: extract.HashContent(content),
		Filename:    filepath.Base(filePath),
		FilePath:    filePath,
		FileSize:    int64(len(content)),
		CreatedAt:   now,
		ModifiedAt:  now,
	}
}

// ProcessDirectory walks a directory tree and processes every supported
// file. Individual failures are logged and skipped so one broken document
// cannot abort a batch ingestion.
func (p *Processor) ProcessDirectory(dir string) ([]*docmodel.ProcessedDocument, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("directory not found: %w", err)
	}

	var docs []*docmodel.ProcessedDocument
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || extract.DetectType(path) == extract.Unsupported {
			return nil
		}
		doc, perr := p.ProcessFile(path)
		if perr != nil {
			p.logger.Error("skipping file in batch", "path", path, "error", perr)
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed walking %s: %w", dir, err)
	}

	p.logger.Info("batch processing complete", "dir", dir, "documents", len(docs))
	return docs, nil
}

// IsContentChanged compares the current file hash against a stored one.
// Unreadable files report as changed so stale index entries get refreshed.
func (p *Processor) IsContentChanged(filePath, storedHash string) bool {
	content, err := extract.LoadContent(filePath)
	if err != nil {
		p.logger.Error("error checking file changes", "path", filePath, "error", err)
		return true
	}
	return extract.HashContent(content) != storedHash
}
