package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dslipak/pdf"
	"github.com/lu4p/cat"

	"github.com/cloudnetkb/knowledge-base-api/pkg/logger_i"
)

var logger = logger_i.NewLogger("Extract")

type DocType string

const (
	PlainText   DocType = "text"
	PDF         DocType = "pdf"
	OfficeDoc   DocType = "office"
	Unsupported DocType = "unsupported"
)

// ErrUnsupportedType is returned for file extensions no loader handles.
var ErrUnsupportedType = errors.New("unsupported document type")

func DetectType(path string) DocType {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".md", ".markdown", ".txt":
		return PlainText
	case ".pdf":
		return PDF
	case ".docx", ".rtf", ".odt":
		return OfficeDoc
	default:
		return Unsupported
	}
}

// LoadContent reads the full text of a document, dispatching on extension.
func LoadContent(path string) (string, error) {
	switch DetectType(path) {
	case PlainText:
		return loadPlainText(path)
	case PDF:
		return loadPDF(path)
	case OfficeDoc:
		return loadOfficeDoc(path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(path))
	}
}

func loadPlainText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("failed reading text file", "path", path, "error", err)
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), nil
}

// loadPDF joins all page texts with paragraph breaks so the chunker can
// split on them. Broken pages are skipped, not fatal.
func loadPDF(path string) (string, error) {
	logger.Debug("loadPDF", "attempting extraction", path)
	f, err := pdf.Open(path)
	if err != nil {
		logger.Error("failed opening of pdf file", "path", path)
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var pages []string
	numPages := f.NumPage()
	logger.Debug("loadPDF", "number of pages", numPages)
	for i := 1; i <= numPages; i++ {
		page := f.Page(i)
		if page.V.IsNull() {
			continue
		}

		content, err := protectExtract(page)
		if err != nil {
			logger.Error("error parsing page content", "page", i, "error", err)
			continue
		}
		pages = append(pages, content)
	}
	return strings.Join(pages, "\n\n"), nil
}

// loadOfficeDoc reads a .docx, .rtf or .odt file and returns the content
// as a single string.
func loadOfficeDoc(path string) (string, error) {
	text, err := cat.File(path)
	if err != nil {
		logger.Error("error extracting content from doc", "path", path)
		return "", fmt.Errorf("failed to extract document: %w", err)
	}
	return text, nil
}

// protectExtract guards against pdf pages whose text extraction hangs.
func protectExtract(page pdf.Page) (string, error) {
	type result struct {
		content string
		err     error
	}
	resChan := make(chan result, 1)

	go func() {
		content, err := page.GetPlainText(nil)
		resChan <- result{content, err}
	}()
	select {
	case r := <-resChan:
		return r.content, r.err
	case <-time.After(time.Second * 10):
		logger.Error("pageExtract", "timeout", true)
		return "", errors.New("timeout")
	}
}
