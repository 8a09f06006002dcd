package a2a

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cloudnetkb/knowledge-base-api/internal/config"
	"github.com/cloudnetkb/knowledge-base-api/internal/domain/docmodel"
	"github.com/cloudnetkb/knowledge-base-api/internal/search"
	"github.com/cloudnetkb/knowledge-base-api/pkg/logger_i"
)

// Searcher is the retrieval dependency; satisfied by *search.Engine.
type Searcher interface {
	Search(ctx context.Context, query string, limit, offset int, minScore float64, filters docmodel.SearchFilters) (*search.Response, error)
}

// StatsProvider reports collection-level statistics.
type StatsProvider interface {
	Stats(ctx context.Context) (*docmodel.CollectionStats, error)
}

// AgentCard advertises the agent's capabilities to peer agents.
type AgentCard struct {
	Name                string              `json:"name"`
	Version             string              `json:"version"`
	Description         string              `json:"description"`
	Capabilities        []string            `json:"capabilities"`
	Endpoints           map[string]Endpoint `json:"endpoints"`
	Authentication      map[string]string   `json:"authentication"`
	Metadata            map[string]string   `json:"metadata"`
	Skills              []string            `json:"skills"`
	SupportedProviders  []string            `json:"supported_providers"`
	SupportedCategories []string            `json:"supported_categories"`
}

type Endpoint struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

// SearchInput is the input schema for the search_knowledge tool.
// MinScore is a pointer so an explicit 0.0 is distinguishable from unset.
type SearchInput struct {
	Query    string   `json:"query" jsonschema:"the search query, at most 500 characters"`
	Limit    int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 5, capped at 50"`
	Provider string   `json:"provider,omitempty" jsonschema:"filter by cloud provider, e.g. 阿里云"`
	Category string   `json:"category,omitempty" jsonschema:"filter by product category, e.g. 负载均衡"`
	MinScore *float64 `json:"min_score,omitempty" jsonschema:"minimum similarity score between 0 and 1, default 0.3"`
}

type SearchParams struct {
	Limit    int     `json:"limit"`
	MinScore float64 `json:"min_score"`
	Provider string  `json:"provider"`
	Category string  `json:"category"`
}

type SearchOutput struct {
	Success        bool            `json:"success"`
	Query          string          `json:"query"`
	TotalResults   int             `json:"total_results"`
	Results        []search.Result `json:"results"`
	ProcessingTime float64         `json:"processing_time"`
	SearchParams   SearchParams    `json:"search_params"`
	Timestamp      float64         `json:"timestamp"`
}

type StatsInput struct{}

type StatsOutput struct {
	Success   bool                      `json:"success"`
	Stats     *docmodel.CollectionStats `json:"stats"`
	Timestamp float64                   `json:"timestamp"`
}

// Agent exposes the knowledge base to peer agents over MCP, with a
// plain HTTP agent card for discovery.
type Agent struct {
	searcher Searcher
	stats    StatsProvider
	card     AgentCard
	server   *mcp.Server
	logger   *logger_i.Logger
}

func NewAgent(searcher Searcher, stats StatsProvider) *Agent {
	a := &Agent{
		searcher: searcher,
		stats:    stats,
		card:     defaultAgentCard(),
		logger:   logger_i.NewLogger("A2A Agent"),
	}

	a.server = mcp.NewServer(
		&mcp.Implementation{
			Name:    config.AppName,
			Version: config.AppVersion,
		},
		nil,
	)

	mcp.AddTool(a.server, &mcp.Tool{
		Name:        "search_knowledge",
		Description: "Semantic search over the cloud product knowledge base. Supports provider and category filters.",
	}, a.handleSearchKnowledge)

	mcp.AddTool(a.server, &mcp.Tool{
		Name:        "get_stats",
		Description: "Collection statistics: chunk count plus provider and category distributions.",
	}, a.handleGetStats)

	return a
}

func defaultAgentCard() AgentCard {
	return AgentCard{
		Name:        config.AppName,
		Version:     config.AppVersion,
		Description: "专业的云产品知识库检索服务",
		Capabilities: []string{
			"语义搜索", "文档检索", "竞品分析", "技术对比", "多厂商支持",
		},
		Endpoints: map[string]Endpoint{
			"get_agent_card": {
				Method:      "GET",
				Path:        "/api/v1/a2a/card",
				Description: "获取Agent能力信息",
			},
			"search_knowledge": {
				Method:      "POST",
				Path:        "/api/v1/a2a",
				Description: "知识库检索",
			},
		},
		Authentication: map[string]string{
			"type":        "none",
			"description": "当前无需认证",
		},
		Metadata: map[string]string{
			"protocol":         "mcp",
			"supported_format": "json",
		},
		Skills: []string{
			"负载均衡技术分析", "云网络产品对比", "NAT网关功能分析",
			"弹性IP服务对比", "专线服务分析", "云联网技术对比", "VPN产品分析",
		},
		SupportedProviders: docmodel.KnownProviders,
		SupportedCategories: []string{
			"负载均衡", "私有网络", "弹性IP", "NAT网关", "专线", "云联网", "VPN",
		},
	}
}

// Card returns the agent card for the discovery endpoint.
func (a *Agent) Card() AgentCard {
	return a.card
}

// Handler returns the MCP transport for mounting under the HTTP router.
func (a *Agent) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return a.server
	}, nil)
}

// SearchKnowledge runs a clamped search on behalf of a peer agent.
func (a *Agent) SearchKnowledge(ctx context.Context, input SearchInput) (*SearchOutput, error) {
	start := time.Now()

	if input.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if utf8.RuneCountInString(input.Query) > config.A2AMaxQueryLength {
		return nil, fmt.Errorf("query exceeds %d characters", config.A2AMaxQueryLength)
	}

	limit := input.Limit
	if limit <= 0 {
		limit = config.A2ADefaultLimit
	}
	if limit > config.A2AMaxLimit {
		limit = config.A2AMaxLimit
	}

	minScore := config.A2ADefaultMinScore
	if input.MinScore != nil {
		minScore = math.Max(0, math.Min(1, *input.MinScore))
	}

	filters := docmodel.SearchFilters{
		Provider: input.Provider,
		Category: input.Category,
	}

	resp, err := a.searcher.Search(ctx, input.Query, limit, 0, minScore, filters)
	if err != nil {
		a.logger.Error("knowledge search failed", "error", err)
		return nil, err
	}

	results := resp.Results
	if results == nil {
		results = []search.Result{}
	}

	return &SearchOutput{
		Success:        true,
		Query:          input.Query,
		TotalResults:   len(results),
		Results:        results,
		ProcessingTime: roundSeconds(time.Since(start)),
		SearchParams: SearchParams{
			Limit:    limit,
			MinScore: minScore,
			Provider: input.Provider,
			Category: input.Category,
		},
		Timestamp: unixSeconds(),
	}, nil
}

func (a *Agent) handleSearchKnowledge(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, *SearchOutput, error) {
	output, err := a.SearchKnowledge(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return nil, output, nil
}

func (a *Agent) handleGetStats(ctx context.Context, _ *mcp.CallToolRequest, _ StatsInput) (*mcp.CallToolResult, *StatsOutput, error) {
	stats, err := a.stats.Stats(ctx)
	if err != nil {
		a.logger.Error("stats collection failed", "error", err)
		return nil, nil, err
	}
	return nil, &StatsOutput{
		Success:   true,
		Stats:     stats,
		Timestamp: unixSeconds(),
	}, nil
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}

func unixSeconds() float64 {
	return float64(time.Now().UnixMilli()) / 1000
}
