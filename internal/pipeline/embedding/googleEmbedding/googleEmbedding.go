package googleEmbedding

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"google.golang.org/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cloudnetkb/knowledge-base-api/internal/config"
	"github.com/cloudnetkb/knowledge-base-api/internal/pipeline/embedding"
	"github.com/cloudnetkb/knowledge-base-api/pkg/logger_i"
)

var logger *logger_i.Logger
var once sync.Once
var embeddingClient *client

type client struct {
	genAi *genai.Client
	model string
}

func newGoogleEmbedder(ctx context.Context, modelName string, apikey string) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apikey})
	if err != nil {
		logger.Error("error creating Google embedding client", "error", err)
		return
	}
	embeddingClient = &client{
		genAi: c,
		model: modelName,
	}
	logger.Info("Google embedding client created", "model", modelName)
}

// GetGoogleEmbeddingClient lazily initializes the shared genai client.
// A nil return means model load failed; callers must treat every
// dependent operation as unavailable, not as "no results".
func GetGoogleEmbeddingClient(ctx context.Context) embedding.Embedder {
	once.Do(func() {
		logger = logger_i.NewLogger("google_embedding")
		apikey := os.Getenv("GEMINI_API_KEY")
		if apikey == "" {
			logger.Error("GEMINI_API_KEY not set")
			return
		}
		newGoogleEmbedder(ctx, config.GoogleEmbeddingModel, apikey)
	})

	//if init still fails
	if embeddingClient == nil {
		return nil
	}
	return &client{genAi: embeddingClient.genAi, model: embeddingClient.model}
}

func (c *client) ModelName() string {
	return c.model
}

func (c *client) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if c.genAi == nil {
		return nil, embedding.ErrUnavailable
	}
	text := genai.Text(config.QueryInstruction + query)

	result, err := c.doCall(ctx, text, "RETRIEVAL_QUERY")
	if err != nil {
		if doRetry(err) {
			time.Sleep(config.EmbeddingRetryBackoff)
			result, err = c.doCall(ctx, text, "RETRIEVAL_QUERY")
		}
		if err != nil {
			logger.Error("error getting query embedding from Google", "error", err.Error())
			return nil, fmt.Errorf("%w: %v", embedding.ErrUnavailable, err)
		}
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: empty response", embedding.ErrUnavailable)
	}
	return result.Embeddings[0].Values, nil
}

func (c *client) BatchEmbedding(ctx context.Context, chunks []string) ([][]float32, error) {
	if c.genAi == nil {
		return nil, embedding.ErrUnavailable
	}
	var vectors [][]float32
	for start := 0; start < len(chunks); start += config.EmbeddingBatchSize {
		end := start + config.EmbeddingBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		res, err := c.doCall(ctx, getContent(chunks[start:end]), "RETRIEVAL_DOCUMENT")
		if err != nil {
			if doRetry(err) {
				logger.Debug("retrying batch after backoff", "batch start", start)
				time.Sleep(config.EmbeddingRetryBackoff)
				res, err = c.doCall(ctx, getContent(chunks[start:end]), "RETRIEVAL_DOCUMENT")
			}
			if err != nil {
				logger.Error("error getting embeddings from Google", "error", err.Error())
				return nil, fmt.Errorf("embedding batch failed: %w", err)
			}
		}
		for _, r := range res.Embeddings {
			vectors = append(vectors, r.Values)
		}
	}
	return vectors, nil
}

func (c *client) doCall(ctx context.Context, content []*genai.Content, taskType string) (*genai.EmbedContentResponse, error) {
	return c.genAi.Models.EmbedContent(ctx, c.model, content, &genai.EmbedContentConfig{TaskType: taskType})
}

func getContent(chunks []string) []*genai.Content {
	contentsToSend := make([]*genai.Content, 0, len(chunks))
	for _, chunk := range chunks {
		contentsToSend = append(contentsToSend, &genai.Content{
			Parts: []*genai.Part{{Text: chunk}},
		})
	}
	return contentsToSend
}

func doRetry(err error) bool {
	if s, ok := status.FromError(err); ok {
		if s.Code() == codes.ResourceExhausted {
			logger.Error("rate limit hit", "error", err)
			return true
		}
	}
	return false
}
