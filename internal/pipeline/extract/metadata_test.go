package extract

import (
	"strings"
	"testing"
)

func TestExtractMetadata_PathWinsOverContent(t *testing.T) {
	// Content mentions AWS, path says 阿里云: path wins.
	content := "aws amazon elastic load balancing overview"
	meta := ExtractMetadata(content, "/data/documents/阿里云/负载均衡/alb-intro.md")

	if meta.Provider != "阿里云" {
		t.Errorf("provider = %q, want 阿里云", meta.Provider)
	}
	if meta.Category != "负载均衡" {
		t.Errorf("category = %q, want 负载均衡", meta.Category)
	}
}

func TestExtractMetadata_CategoryVerbatimFromPath(t *testing.T) {
	meta := ExtractMetadata("irrelevant", "/data/documents/AWS/VPN/site-to-site.md")

	if meta.Provider != "AWS" {
		t.Errorf("provider = %q, want AWS", meta.Provider)
	}
	if meta.Category != "VPN" {
		t.Errorf("category = %q, want VPN", meta.Category)
	}
}

func TestExtractMetadata_UnknownPathProviderIgnored(t *testing.T) {
	meta := ExtractMetadata("tencent cloud clb docs", "/data/documents/unknown-vendor/clb/doc.md")

	// Path provider is not in the known set, so content sniffing applies.
	if meta.Provider != "腾讯云" {
		t.Errorf("provider = %q, want 腾讯云 from content", meta.Provider)
	}
}

func TestExtractMetadata_ContentSniffingPriority(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		provider string
	}{
		{"aliyun by name", "阿里云产品文档", "阿里云"},
		{"aliyun by acronym", "ALB 监听器配置", "阿里云"},
		{"aliyun beats aws", "aliyun vs aws comparison", "阿里云"},
		{"tencent", "Tencent Cloud CLB", "腾讯云"},
		{"gcp", "GCP networking", "GCP"},
		{"azure", "Microsoft Azure docs", "Azure"},
		{"azure chinese", "微软云服务", "Azure"},
		{"aws", "Amazon Web Services", "AWS"},
		{"huawei", "华为云产品", "华为云"},
		{"volcano", "火山云介绍", "火山云"},
		{"none", "generic networking text", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := ExtractMetadata(tt.content, "/tmp/no-signal.md")
			if meta.Provider != tt.provider {
				t.Errorf("provider = %q, want %q", meta.Provider, tt.provider)
			}
		})
	}
}

func TestExtractMetadata_LoadBalancerTags(t *testing.T) {
	meta := ExtractMetadata("本文介绍负载均衡的基本概念", "/tmp/doc.md")

	if meta.Category != "负载均衡" {
		t.Fatalf("category = %q, want 负载均衡", meta.Category)
	}
	want := []string{"负载均衡", "网络", "高可用"}
	if len(meta.Tags) != len(want) {
		t.Fatalf("tags = %v, want %v", meta.Tags, want)
	}
	for i := range want {
		if meta.Tags[i] != want[i] {
			t.Errorf("tag[%d] = %q, want %q", i, meta.Tags[i], want[i])
		}
	}
}

func TestExtractMetadata_SourceMarkers(t *testing.T) {
	content := "# 负载均衡概述\n\n" +
		"> 来源: https://example.com/docs/slb?id=1\n" +
		"> 转换时间: 2024-03-15 10:30:00\n\n正文内容"
	meta := ExtractMetadata(content, "/tmp/doc.md")

	if meta.SourceURL != "https://example.com/docs/slb?id=1" {
		t.Errorf("source_url = %q", meta.SourceURL)
	}
	if meta.ConvertedAt != "2024-03-15 10:30:00" {
		t.Errorf("converted_at = %q", meta.ConvertedAt)
	}
}

func TestExtractMetadata_MarkersOptional(t *testing.T) {
	meta := ExtractMetadata("plain document without markers", "/tmp/doc.md")

	if meta.SourceURL != "" || meta.ConvertedAt != "" {
		t.Errorf("expected empty markers, got url=%q time=%q", meta.SourceURL, meta.ConvertedAt)
	}
}

func TestExtractMetadata_Counts(t *testing.T) {
	meta := ExtractMetadata("one two three", "/tmp/doc.md")

	if meta.WordCount != 3 {
		t.Errorf("word_count = %d, want 3", meta.WordCount)
	}
	if meta.CharCount != 13 {
		t.Errorf("char_count = %d, want 13", meta.CharCount)
	}

	// Character count is rune-based for CJK text.
	meta = ExtractMetadata("你好世界", "/tmp/doc.md")
	if meta.CharCount != 4 {
		t.Errorf("char_count = %d, want 4 runes", meta.CharCount)
	}
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		filePath string
		want     string
	}{
		{"filename stem wins", "# Heading Title\n\nbody", "/docs/my-document.md", "my-document"},
		{"filename without extension", "", "/docs/README", "README"},
		{"first level heading", "intro\n# Main Title\nbody", "", "Main Title"},
		{"second level heading", "intro\n## Section Title\nbody", "", "Section Title"},
		{"no signal", "plain text only", "", "Untitled Document"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractTitle(tt.content, tt.filePath)
			if got != tt.want {
				t.Errorf("ExtractTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHashContent(t *testing.T) {
	h1 := HashContent("hello")
	h2 := HashContent("hello")
	h3 := HashContent("hello!")

	if h1 != h2 {
		t.Error("hash is not deterministic")
	}
	if h1 == h3 {
		t.Error("different content produced the same hash")
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(h1))
	}
	if strings.ToLower(h1) != h1 {
		t.Errorf("hash not lower-case hex: %q", h1)
	}
}

func TestDetectType(t *testing.T) {
	tests := []struct {
		path string
		want DocType
	}{
		{"doc.md", PlainText},
		{"doc.markdown", PlainText},
		{"doc.txt", PlainText},
		{"doc.PDF", PDF},
		{"doc.docx", OfficeDoc},
		{"doc.rtf", OfficeDoc},
		{"doc.odt", OfficeDoc},
		{"doc.exe", Unsupported},
		{"doc", Unsupported},
	}

	for _, tt := range tests {
		if got := DetectType(tt.path); got != tt.want {
			t.Errorf("DetectType(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
