package processor

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProcessFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "documents/阿里云/负载均衡/alb-guide.md",
		"# ALB 指南\n\n> 来源: https://example.com/alb\n\n负载均衡实例说明。")

	p, err := New()
	if err != nil {
		t.Fatal(err)
	}

	doc, err := p.ProcessFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if doc.Title != "alb-guide" {
		t.Errorf("title = %q, want filename stem", doc.Title)
	}
	if doc.Metadata.Provider != "阿里云" {
		t.Errorf("provider = %q", doc.Metadata.Provider)
	}
	if doc.Metadata.Category != "负载均衡" {
		t.Errorf("category = %q", doc.Metadata.Category)
	}
	if doc.Metadata.SourceURL != "https://example.com/alb" {
		t.Errorf("source_url = %q", doc.Metadata.SourceURL)
	}
	if len(doc.Chunks) == 0 {
		t.Error("expected at least one chunk")
	}
	if doc.ContentHash == "" {
		t.Error("missing content hash")
	}
	if doc.Filename != "alb-guide.md" || doc.FileSize == 0 {
		t.Errorf("file attributes not populated: %+v", doc)
	}
}

func TestProcessFile_EmptyContent(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "empty.md", "   \n\n  ")

	p, _ := New()
	if _, err := p.ProcessFile(path); err == nil {
		t.Error("expected error for empty document")
	}
}

func TestProcessFile_UnsupportedType(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "binary.exe", "MZ")

	p, _ := New()
	if _, err := p.ProcessFile(path); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestProcessFile_SmallChunkBudget(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "upload.md", "# Title\n\nAAA. BBB. CCC.")

	p, err := NewWithLimits(10, 2)
	if err != nil {
		t.Fatal(err)
	}

	doc, err := p.ProcessFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Chunks) < 2 {
		t.Errorf("expected multiple chunks under a small budget, got %d", len(doc.Chunks))
	}
	for i, c := range doc.Chunks {
		if c.ChunkIndex != i {
			t.Errorf("chunk %d has index %d", i, c.ChunkIndex)
		}
	}
}

func TestProcessDirectory_SkipsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "good-one.md", "first valid document content")
	writeTestFile(t, dir, "nested/good-two.txt", "second valid document content")
	writeTestFile(t, dir, "empty.md", "")
	writeTestFile(t, dir, "skipped.exe", "binary")

	p, _ := New()
	docs, err := p.ProcessDirectory(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 processed documents, got %d", len(docs))
	}
}

func TestProcessDirectory_Missing(t *testing.T) {
	p, _ := New()
	if _, err := p.ProcessDirectory("/nonexistent/dir"); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestIsContentChanged(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "doc.md", "original content")

	p, _ := New()
	doc, err := p.ProcessFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if p.IsContentChanged(path, doc.ContentHash) {
		t.Error("unchanged file reported as changed")
	}

	writeTestFile(t, dir, "doc.md", "modified content")
	if !p.IsContentChanged(path, doc.ContentHash) {
		t.Error("modified file reported as unchanged")
	}

	// Unreadable files count as changed.
	if !p.IsContentChanged(filepath.Join(dir, "missing.md"), doc.ContentHash) {
		t.Error("missing file should report as changed")
	}
}
