package openaiEmbedding

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/cloudnetkb/knowledge-base-api/internal/config"
	"github.com/cloudnetkb/knowledge-base-api/internal/pipeline/embedding"
	"github.com/cloudnetkb/knowledge-base-api/pkg/logger_i"
)

var logger *logger_i.Logger
var once sync.Once
var embeddingClient *client

type client struct {
	api   *openai.Client
	model string
}

// GetOpenAIEmbeddingClient lazily initializes the shared OpenAI client.
// Same contract as the Google provider: nil means unavailable.
func GetOpenAIEmbeddingClient(ctx context.Context) embedding.Embedder {
	once.Do(func() {
		logger = logger_i.NewLogger("openai_embedding")
		apikey := os.Getenv("OPENAI_API_KEY")
		if apikey == "" {
			logger.Error("OPENAI_API_KEY not set")
			return
		}
		api := openai.NewClient(option.WithAPIKey(apikey))
		embeddingClient = &client{
			api:   &api,
			model: config.OpenAIEmbeddingModel,
		}
		logger.Info("OpenAI embedding client created", "model", config.OpenAIEmbeddingModel)
	})

	if embeddingClient == nil {
		return nil
	}
	return &client{api: embeddingClient.api, model: embeddingClient.model}
}

func (c *client) ModelName() string {
	return c.model
}

func (c *client) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if c.api == nil {
		return nil, embedding.ErrUnavailable
	}
	vectors, err := c.embed(ctx, []string{config.QueryInstruction + query})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", embedding.ErrUnavailable, err)
	}
	return vectors[0], nil
}

func (c *client) BatchEmbedding(ctx context.Context, chunks []string) ([][]float32, error) {
	if c.api == nil {
		return nil, embedding.ErrUnavailable
	}
	var vectors [][]float32
	for start := 0; start < len(chunks); start += config.EmbeddingBatchSize {
		end := start + config.EmbeddingBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch, err := c.embed(ctx, chunks[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding batch failed: %w", err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (c *client) embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		logger.Error("error getting embeddings from OpenAI", "error", err.Error())
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(resp.Data))
	}

	// Responses carry their request index; order by it rather than trusting
	// slice position.
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		vectors[d.Index] = vec
	}
	return vectors, nil
}
