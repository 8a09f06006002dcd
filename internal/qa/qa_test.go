package qa

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/cloudnetkb/knowledge-base-api/internal/domain/docmodel"
	"github.com/cloudnetkb/knowledge-base-api/internal/search"
)

type mockSearcher struct {
	OnSearch func(ctx context.Context, query string, limit, offset int, minScore float64, filters docmodel.SearchFilters) (*search.Response, error)
}

func (m *mockSearcher) Search(ctx context.Context, query string, limit, offset int, minScore float64, filters docmodel.SearchFilters) (*search.Response, error) {
	return m.OnSearch(ctx, query, limit, offset, minScore, filters)
}

func result(docID int64, title, content, provider string, score float64) search.Result {
	return search.Result{
		ID:      docID,
		Title:   title,
		Content: content,
		Score:   score,
		Metadata: docmodel.VectorMetadata{
			DocumentID: docID,
			Title:      title,
			Provider:   provider,
		},
	}
}

func fixedSearcher(results ...search.Result) *mockSearcher {
	return &mockSearcher{
		OnSearch: func(_ context.Context, _ string, _, _ int, _ float64, _ docmodel.SearchFilters) (*search.Response, error) {
			return &search.Response{Total: len(results), Results: results}, nil
		},
	}
}

func TestAnswerQuestion_NoResults(t *testing.T) {
	svc := New(fixedSearcher())

	ans, err := svc.AnswerQuestion(context.Background(), "什么是SLB", 3, true, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ans.Answer, "没有找到相关信息") {
		t.Errorf("unexpected answer: %q", ans.Answer)
	}
	if ans.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", ans.Confidence)
	}
	if len(ans.Sources) != 0 {
		t.Errorf("sources = %v, want empty", ans.Sources)
	}
}

func TestAnswerQuestion_SearchError(t *testing.T) {
	svc := New(&mockSearcher{
		OnSearch: func(context.Context, string, int, int, float64, docmodel.SearchFilters) (*search.Response, error) {
			return nil, errors.New("embedder offline")
		},
	})

	ans, err := svc.AnswerQuestion(context.Background(), "什么是SLB", 3, true, "", "")
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	if !strings.Contains(ans.Answer, "发生了错误") {
		t.Errorf("unexpected fallback answer: %q", ans.Answer)
	}
}

func TestAnswerQuestion_DefinitionTemplate(t *testing.T) {
	svc := New(fixedSearcher(
		result(1, "ALB产品介绍", "应用型负载均衡ALB是阿里云的七层负载均衡服务。", "阿里云", 0.9),
		result(2, "CLB产品介绍", "传统型负载均衡CLB工作在四层。", "阿里云", 0.7),
	))

	ans, err := svc.AnswerQuestion(context.Background(), "什么是ALB", 3, false, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(ans.Answer, "根据知识库信息，ALB产品介绍的相关内容如下：") {
		t.Errorf("answer missing definition header: %q", ans.Answer)
	}
	if !strings.Contains(ans.Answer, "七层负载均衡服务") {
		t.Errorf("answer missing top document content: %q", ans.Answer)
	}
}

func TestAnswerQuestion_DefinitionClipsLongContent(t *testing.T) {
	long := strings.Repeat("云", 900)
	svc := New(fixedSearcher(result(1, "概述", long, "阿里云", 0.9)))

	ans, err := svc.AnswerQuestion(context.Background(), "什么是SLB", 3, false, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(ans.Answer, "...") {
		t.Errorf("long content not clipped: %q", ans.Answer[len(ans.Answer)-20:])
	}
	if strings.Count(ans.Answer, "云") != 800 {
		t.Errorf("clipped to %d runes, want 800", strings.Count(ans.Answer, "云"))
	}
}

func TestAnswerQuestion_ComparisonGroupsByProvider(t *testing.T) {
	svc := New(fixedSearcher(
		result(1, "阿里云ALB", "阿里云七层负载均衡。", "阿里云", 0.9),
		result(2, "腾讯云CLB", "腾讯云负载均衡服务。", "腾讯云", 0.8),
		result(3, "ELB概览", "弹性负载均衡。", "", 0.7),
		result(4, "GCP LB", "谷歌云负载均衡。", "GCP", 0.6),
	))

	ans, err := svc.AnswerQuestion(context.Background(), "阿里云和腾讯云负载均衡的区别", 4, false, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(ans.Answer, "基于知识库信息，各厂商产品对比如下：") {
		t.Errorf("missing comparison header: %q", ans.Answer)
	}
	for _, want := range []string{"【阿里云】", "【腾讯云】", "【未知厂商】", "• 阿里云ALB"} {
		if !strings.Contains(ans.Answer, want) {
			t.Errorf("answer missing %q:\n%s", want, ans.Answer)
		}
	}
	// Fourth provider falls past the three-vendor cap.
	if strings.Contains(ans.Answer, "【GCP】") {
		t.Errorf("more than three providers rendered:\n%s", ans.Answer)
	}
}

func TestAnswerQuestion_ComparisonCapsDocsPerProvider(t *testing.T) {
	svc := New(fixedSearcher(
		result(1, "文档一", "内容一。", "AWS", 0.9),
		result(2, "文档二", "内容二。", "AWS", 0.8),
		result(3, "文档三", "内容三。", "AWS", 0.7),
	))

	ans, err := svc.AnswerQuestion(context.Background(), "各产品对比分析", 5, false, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(ans.Answer, "文档三") {
		t.Errorf("third document for one provider should be dropped:\n%s", ans.Answer)
	}
	if !strings.Contains(ans.Answer, "文档一") || !strings.Contains(ans.Answer, "文档二") {
		t.Errorf("first two documents missing:\n%s", ans.Answer)
	}
}

func TestAnswerQuestion_HowToTemplate(t *testing.T) {
	svc := New(fixedSearcher(
		result(1, "ALB配置指南", "第一步创建实例，第二步配置监听。", "阿里云", 0.9),
	))

	ans, err := svc.AnswerQuestion(context.Background(), "如何配置ALB监听", 3, false, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(ans.Answer, "基于知识库内容，相关操作说明如下：") {
		t.Errorf("missing how-to header: %q", ans.Answer)
	}
}

func TestAnswerQuestion_GenericTemplate(t *testing.T) {
	svc := New(fixedSearcher(
		result(1, "ALB概览", "阿里云负载均衡概览。", "阿里云", 0.9),
	))

	ans, err := svc.AnswerQuestion(context.Background(), "负载均衡相关资料", 3, false, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(ans.Answer, "根据知识库搜索结果，竞品分析如下：") {
		t.Errorf("missing generic header: %q", ans.Answer)
	}
	if !strings.Contains(ans.Answer, "【阿里云产品分析】") {
		t.Errorf("missing provider analysis section:\n%s", ans.Answer)
	}
}

func TestAnswerQuestion_DeduplicatesByDocument(t *testing.T) {
	svc := New(fixedSearcher(
		result(1, "ALB介绍", "块一。", "阿里云", 0.9),
		result(1, "ALB介绍", "块二。", "阿里云", 0.85),
		result(2, "CLB介绍", "块三。", "阿里云", 0.8),
	))

	ans, err := svc.AnswerQuestion(context.Background(), "负载均衡资料", 3, true, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(ans.Sources) != 2 {
		t.Errorf("sources = %d, want 2 after dedupe", len(ans.Sources))
	}
}

func TestAnswerQuestion_ContextLimitRespected(t *testing.T) {
	var gotLimit int
	svc := New(&mockSearcher{
		OnSearch: func(_ context.Context, _ string, limit, _ int, _ float64, _ docmodel.SearchFilters) (*search.Response, error) {
			gotLimit = limit
			return &search.Response{Results: []search.Result{
				result(1, "一", "内容。", "AWS", 0.9),
				result(2, "二", "内容。", "AWS", 0.8),
				result(3, "三", "内容。", "AWS", 0.7),
			}}, nil
		},
	})

	ans, err := svc.AnswerQuestion(context.Background(), "资料", 2, true, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if gotLimit != 4 {
		t.Errorf("search limit = %d, want contextLimit*2 = 4", gotLimit)
	}
	if len(ans.Sources) != 2 {
		t.Errorf("context size = %d, want 2", len(ans.Sources))
	}
}

func TestAnswerQuestion_FiltersForwarded(t *testing.T) {
	var gotFilters docmodel.SearchFilters
	svc := New(&mockSearcher{
		OnSearch: func(_ context.Context, _ string, _, _ int, _ float64, filters docmodel.SearchFilters) (*search.Response, error) {
			gotFilters = filters
			return &search.Response{}, nil
		},
	})

	if _, err := svc.AnswerQuestion(context.Background(), "资料", 3, false, "阿里云", "负载均衡"); err != nil {
		t.Fatal(err)
	}
	if gotFilters.Provider != "阿里云" || gotFilters.Category != "负载均衡" {
		t.Errorf("filters = %+v", gotFilters)
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name string
		docs []search.Result
		want float64
	}{
		{"no docs", nil, 0},
		{"single low score", []search.Result{result(1, "a", "", "", 0.5)}, 0.4},
		{"capped", []search.Result{
			result(1, "a", "", "", 0.9),
			result(2, "b", "", "", 0.8),
			result(3, "c", "", "", 0.7),
		}, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := confidence(tt.docs)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("confidence = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAnswerQuestion_Sources(t *testing.T) {
	long := strings.Repeat("容", 350)
	r := result(1, "ALB指南", long, "阿里云", 0.87654)
	r.Metadata.SourceURL = "https://example.com/alb"
	svc := New(fixedSearcher(r))

	ans, err := svc.AnswerQuestion(context.Background(), "资料", 3, true, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(ans.Sources) != 1 {
		t.Fatalf("sources = %d, want 1", len(ans.Sources))
	}
	src := ans.Sources[0]
	if src.Document != "ALB指南" {
		t.Errorf("document = %q, want title fallback", src.Document)
	}
	if utf8.RuneCountInString(src.Excerpt) != 303 || !strings.HasSuffix(src.Excerpt, "...") {
		t.Errorf("excerpt not clipped to 300 runes: len=%d", utf8.RuneCountInString(src.Excerpt))
	}
	if src.Relevance != 0.877 {
		t.Errorf("relevance = %v, want 0.877", src.Relevance)
	}
	if src.Provider != "阿里云" || src.SourceURL != "https://example.com/alb" {
		t.Errorf("source metadata: %+v", src)
	}
}

func TestSummarize_Brief(t *testing.T) {
	svc := New(fixedSearcher())
	text := "阿里云应用型负载均衡提供七层转发能力。腾讯云负载均衡支持四层与七层协议。短句。华为云弹性负载均衡支持跨可用区容灾部署。亚马逊弹性负载均衡集成自动伸缩组。"

	sum := svc.Summarize(text, "brief", 200)
	if strings.Contains(sum.Summary, "短句") {
		t.Errorf("short sentence not filtered: %q", sum.Summary)
	}
	if !strings.HasSuffix(sum.Summary, "。") {
		t.Errorf("summary missing trailing period: %q", sum.Summary)
	}
	if got := strings.Count(sum.Summary, "。"); got != 3 {
		t.Errorf("brief summary has %d sentences, want 3", got)
	}
	if strings.Contains(sum.Summary, "亚马逊") {
		t.Errorf("fourth sentence leaked into brief summary: %q", sum.Summary)
	}
	if sum.OriginalLength != utf8.RuneCountInString(text) {
		t.Errorf("original_length = %d", sum.OriginalLength)
	}
}

func TestSummarize_DetailedKeepsMoreSentences(t *testing.T) {
	svc := New(fixedSearcher())
	var b strings.Builder
	for i := 0; i < 9; i++ {
		b.WriteString("这是一段足够长的测试句子编号")
		b.WriteRune(rune('零' + i))
		b.WriteString("。")
	}

	sum := svc.Summarize(b.String(), "detailed", 500)
	if got := strings.Count(sum.Summary, "。"); got != 7 {
		t.Errorf("detailed summary has %d sentences, want 7", got)
	}
}

func TestSummarize_MaxLengthClipping(t *testing.T) {
	svc := New(fixedSearcher())
	text := strings.Repeat("这是一个超过十个字符的完整测试句子。", 20)

	sum := svc.Summarize(text, "brief", 30)
	if utf8.RuneCountInString(sum.Summary) > 30 {
		t.Errorf("summary length = %d, want <= 30", utf8.RuneCountInString(sum.Summary))
	}
	if !strings.HasSuffix(sum.Summary, "...") {
		t.Errorf("clipped summary missing ellipsis: %q", sum.Summary)
	}
	if sum.SummaryLength != utf8.RuneCountInString(sum.Summary) {
		t.Errorf("summary_length = %d, want %d", sum.SummaryLength, utf8.RuneCountInString(sum.Summary))
	}
}

func TestSummarize_CompressionRatio(t *testing.T) {
	svc := New(fixedSearcher())
	sum := svc.Summarize("", "brief", 100)
	if sum.CompressionRatio != 0 {
		t.Errorf("ratio for empty input = %v, want 0", sum.CompressionRatio)
	}

	text := "阿里云应用型负载均衡提供七层转发能力。"
	sum = svc.Summarize(text, "brief", 200)
	if sum.CompressionRatio != 1.0 {
		t.Errorf("ratio = %v, want 1.0 when nothing is dropped", sum.CompressionRatio)
	}
}
