package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/cloudnetkb/knowledge-base-api/internal/domain/docmodel"
)

var (
	sourceURLPattern   = regexp.MustCompile(`> 来源:\s*(https?://\S+)`)
	convertedAtPattern = regexp.MustCompile(`> 转换时间:\s*(\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2})`)
	headingPattern     = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	subHeadingPattern  = regexp.MustCompile(`(?m)^##\s+(.+)$`)
)

// ingestionRoot is the path segment that marks the start of the
// provider/category directory layout: .../documents/<provider>/<category>/file.md
const ingestionRoot = "documents"

// ExtractMetadata derives provider, category, source link and counts from a
// document. Path-derived values win over content sniffing. It never fails:
// anything undetectable is simply left empty.
func ExtractMetadata(content, filePath string) (meta docmodel.Metadata) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("metadata extraction recovered", "path", filePath, "panic", r)
		}
	}()

	meta.Provider, meta.Category = fromPath(filePath)

	if meta.Provider == "" {
		meta.Provider = sniffProvider(content)
	}
	if meta.Category == "" {
		meta.Category = sniffCategory(content)
	}
	if meta.Category == "负载均衡" {
		meta.Tags = []string{"负载均衡", "网络", "高可用"}
	}

	if m := sourceURLPattern.FindStringSubmatch(content); m != nil {
		meta.SourceURL = m[1]
	}
	if m := convertedAtPattern.FindStringSubmatch(content); m != nil {
		meta.ConvertedAt = m[1]
	}

	meta.WordCount = len(strings.Fields(content))
	meta.CharCount = utf8.RuneCountInString(content)
	return meta
}

// fromPath reads provider and category from the directory layout under the
// ingestion root. The provider segment must be a known vendor; the category
// segment is taken verbatim.
func fromPath(filePath string) (provider, category string) {
	parts := strings.Split(filepath.ToSlash(filePath), "/")
	for i, part := range parts {
		if part != ingestionRoot {
			continue
		}
		if i+1 < len(parts)-1 && docmodel.IsKnownProvider(parts[i+1]) {
			provider = parts[i+1]
		}
		if i+2 < len(parts)-1 {
			category = parts[i+2]
		}
		break
	}
	return provider, category
}

// sniffProvider scans content for vendor markers in fixed priority order.
// Latin tokens match case-insensitively.
func sniffProvider(content string) string {
	lower := strings.ToLower(content)
	switch {
	case strings.Contains(content, "阿里云") || strings.Contains(content, "ALB") || strings.Contains(lower, "aliyun"):
		return "阿里云"
	case strings.Contains(content, "腾讯云") || strings.Contains(lower, "tencent"):
		return "腾讯云"
	case strings.Contains(content, "GCP") || strings.Contains(lower, "google cloud"):
		return "GCP"
	case strings.Contains(lower, "azure") || strings.Contains(content, "微软"):
		return "Azure"
	case strings.Contains(lower, "aws") || strings.Contains(lower, "amazon"):
		return "AWS"
	case strings.Contains(content, "华为云") || strings.Contains(lower, "huawei"):
		return "华为云"
	case strings.Contains(content, "火山云"):
		return "火山云"
	default:
		return ""
	}
}

func sniffCategory(content string) string {
	if strings.Contains(content, "负载均衡") || strings.Contains(strings.ToLower(content), "load balancer") {
		return "负载均衡"
	}
	return ""
}

// ExtractTitle prefers the filename stem; content headings are the fallback
// for documents without a usable path.
func ExtractTitle(content, filePath string) string {
	if filePath != "" {
		filename := filepath.Base(filePath)
		if idx := strings.LastIndex(filename, "."); idx > 0 {
			return filename[:idx]
		}
		return filename
	}

	if m := headingPattern.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := subHeadingPattern.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	return "Untitled Document"
}

// HashContent returns the hex sha256 digest of the document text. Used only
// for change detection, not a security primitive.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
