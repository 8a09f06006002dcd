package vectorstore

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/cloudnetkb/knowledge-base-api/internal/config"
	"github.com/cloudnetkb/knowledge-base-api/internal/domain/docmodel"
	"github.com/cloudnetkb/knowledge-base-api/pkg/logger_i"
)

var logger *logger_i.Logger
var qdrantInstance *qdrant.Client
var once sync.Once

// QdrantIndex implements VectorIndex over a qdrant collection with
// Euclidean distance. Point ids are derived deterministically from the
// chunk key so re-indexing a document overwrites its old points.
type QdrantIndex struct {
	client *qdrant.Client
}

// GetQdrantIndex lazily connects the shared qdrant client. Returns nil
// when the connection could not be established.
func GetQdrantIndex(ctx context.Context) *QdrantIndex {
	once.Do(func() {
		logger = logger_i.NewLogger("Qdrant")
		res := newClient()
		if res != nil {
			qdrantInstance = res
			go closeQdrant(ctx, qdrantInstance)
		}
	})

	if qdrantInstance == nil {
		return nil
	}
	return &QdrantIndex{client: qdrantInstance}
}

func newClient() *qdrant.Client {
	host := os.Getenv("QDRANT_HOST")
	port, er := strconv.Atoi(os.Getenv("QDRANT_PORT"))

	if host == "" || er != nil {
		host = config.QdrantHost
		port = config.QdrantGrpcPort
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:     host,
		Port:     port,
		UseTLS:   config.QdrantUseTLS,
		PoolSize: uint(config.QdrantPoolSize),
	})
	if err != nil {
		logger.Error("could not instantiate qdrant client", "error", err)
		return nil
	}
	return client
}

func closeQdrant(ctx context.Context, qi *qdrant.Client) {
	<-ctx.Done()
	logger.Info("Shutting down Qdrant")
	if err := qi.Close(); err != nil {
		logger.Error("could not close Qdrant", "error", err)
	}
}

// pointID maps a chunk key to a stable UUID; qdrant only accepts UUIDs or
// integers as point ids, the readable key lives in the payload.
func pointID(chunkKey string) *qdrant.PointId {
	return qdrant.NewID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkKey)).String())
}

func (q *QdrantIndex) EnsureCollection(ctx context.Context, dimension int) error {
	exists, err := q.client.CollectionExists(ctx, config.CollectionName)
	if err != nil {
		return fmt.Errorf("collection existence check failed: %w", err)
	}

	if exists {
		info, err := q.client.GetCollectionInfo(ctx, config.CollectionName)
		if err != nil {
			return fmt.Errorf("collection info failed: %w", err)
		}
		declared := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		if declared == uint64(dimension) {
			return nil
		}
		// Destructive: a dimension change invalidates every stored vector.
		logger.Warn("collection dimension drift, recreating",
			"collection", config.CollectionName, "declared", declared, "required", dimension)
		if err := q.client.DeleteCollection(ctx, config.CollectionName); err != nil {
			return fmt.Errorf("collection recreation failed: %w", err)
		}
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: config.CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Euclid,
		}),
	})
	if err != nil {
		return fmt.Errorf("collection creation failed: %w", err)
	}
	logger.Info("collection created", "collection", config.CollectionName, "dimension", dimension)
	return nil
}

func (q *QdrantIndex) Add(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, rec := range records {
		points[i] = &qdrant.PointStruct{
			Id:      pointID(rec.ChunkKey),
			Vectors: qdrant.NewVectors(rec.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"chunk_key":   rec.ChunkKey,
				"content":     rec.Content,
				"document_id": rec.Metadata.DocumentID,
				"chunk_index": int64(rec.Metadata.ChunkIndex),
				"title":       rec.Metadata.Title,
				"provider":    rec.Metadata.Provider,
				"category":    rec.Metadata.Category,
				"source_url":  rec.Metadata.SourceURL,
				"filename":    rec.Metadata.Filename,
				"start_pos":   int64(rec.Metadata.StartPos),
				"end_pos":     int64(rec.Metadata.EndPos),
				"word_count":  int64(rec.Metadata.WordCount),
			}),
		}
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: config.CollectionName,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}
	return nil
}

func documentFilter(documentID int64) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatchInt("document_id", documentID)},
	}
}

func (q *QdrantIndex) DeleteByDocument(ctx context.Context, documentID int64) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: config.CollectionName,
		Points:         qdrant.NewPointsSelectorFilter(documentFilter(documentID)),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete failed: %w", err)
	}
	return nil
}

func (q *QdrantIndex) UpdateDocumentMetadata(ctx context.Context, documentID int64, provider, category string) error {
	_, err := q.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: config.CollectionName,
		Payload: qdrant.NewValueMap(map[string]any{
			"provider": provider,
			"category": category,
		}),
		PointsSelector: qdrant.NewPointsSelectorFilter(documentFilter(documentID)),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant payload update failed: %w", err)
	}
	return nil
}

func searchFilter(filters docmodel.SearchFilters) *qdrant.Filter {
	if filters.IsZero() {
		return nil
	}
	var must []*qdrant.Condition
	if filters.Provider != "" {
		must = append(must, qdrant.NewMatch("provider", filters.Provider))
	}
	if filters.Category != "" {
		must = append(must, qdrant.NewMatch("category", filters.Category))
	}
	if filters.Filename != "" {
		must = append(must, qdrant.NewMatch("filename", filters.Filename))
	}
	return &qdrant.Filter{Must: must}
}

func (q *QdrantIndex) Query(ctx context.Context, vector []float32, limit, offset int, filters docmodel.SearchFilters) ([]docmodel.ScoredChunk, error) {
	loggr := logger.With("traceId", ctx.Value(config.TRACE_ID_KEY))

	result, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: config.CollectionName,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		Offset:         qdrant.PtrOf(uint64(offset)),
		Filter:         searchFilter(filters),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		loggr.Error("error querying qdrant", "error", err)
		return nil, fmt.Errorf("qdrant query failed: %w", err)
	}

	hits := make([]docmodel.ScoredChunk, 0, len(result))
	for _, hit := range result {
		hits = append(hits, docmodel.ScoredChunk{
			ChunkID: hit.Payload["chunk_key"].GetStringValue(),
			Content: hit.Payload["content"].GetStringValue(),
			// With Euclidean distance the reported score is the raw
			// distance, lower is closer.
			Distance: float64(hit.Score),
			Metadata: payloadMetadata(hit.Payload),
		})
	}
	return hits, nil
}

func payloadMetadata(payload map[string]*qdrant.Value) docmodel.VectorMetadata {
	return docmodel.VectorMetadata{
		DocumentID: payload["document_id"].GetIntegerValue(),
		ChunkIndex: int(payload["chunk_index"].GetIntegerValue()),
		Title:      payload["title"].GetStringValue(),
		Provider:   payload["provider"].GetStringValue(),
		Category:   payload["category"].GetStringValue(),
		SourceURL:  payload["source_url"].GetStringValue(),
		Filename:   payload["filename"].GetStringValue(),
		StartPos:   int(payload["start_pos"].GetIntegerValue()),
		EndPos:     int(payload["end_pos"].GetIntegerValue()),
		WordCount:  int(payload["word_count"].GetIntegerValue()),
	}
}

func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: config.CollectionName,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count failed: %w", err)
	}
	return int(count), nil
}

// Stats scrolls the full collection and aggregates provider/category
// distributions. Payload-only scroll, vectors are not transferred.
func (q *QdrantIndex) Stats(ctx context.Context) (*docmodel.CollectionStats, error) {
	providerCounts := map[string]int{}
	categoryCounts := map[string]int{}
	total := 0

	var pageOffset *qdrant.PointId
	const pageSize = 256
	for {
		points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: config.CollectionName,
			Limit:          qdrant.PtrOf(uint32(pageSize)),
			Offset:         pageOffset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant scroll failed: %w", err)
		}

		for i, point := range points {
			// The offset point is returned again on continuation pages.
			if pageOffset != nil && i == 0 {
				continue
			}
			total++
			if p := point.Payload["provider"].GetStringValue(); p != "" {
				providerCounts[p]++
			}
			if c := point.Payload["category"].GetStringValue(); c != "" {
				categoryCounts[c]++
			}
		}

		if len(points) < pageSize {
			break
		}
		pageOffset = points[len(points)-1].Id
	}

	return buildStats(total, providerCounts, categoryCounts), nil
}

func (q *QdrantIndex) Reset(ctx context.Context, dimension int) error {
	exists, err := q.client.CollectionExists(ctx, config.CollectionName)
	if err != nil {
		return fmt.Errorf("collection existence check failed: %w", err)
	}
	if exists {
		if err := q.client.DeleteCollection(ctx, config.CollectionName); err != nil {
			return fmt.Errorf("collection drop failed: %w", err)
		}
	}
	return q.EnsureCollection(ctx, dimension)
}

// buildStats is shared by both index implementations.
func buildStats(total int, providerCounts, categoryCounts map[string]int) *docmodel.CollectionStats {
	stats := &docmodel.CollectionStats{
		TotalChunks:          total,
		Providers:            make([]string, 0, len(providerCounts)),
		Categories:           make([]string, 0, len(categoryCounts)),
		ProviderDistribution: make(map[string]docmodel.ProviderShare, len(providerCounts)),
		CategoryDistribution: categoryCounts,
		CollectionName:       config.CollectionName,
	}
	for p, n := range providerCounts {
		stats.Providers = append(stats.Providers, p)
		share := docmodel.ProviderShare{Count: n}
		if total > 0 {
			share.Percentage = float64(n) / float64(total) * 100
		}
		stats.ProviderDistribution[p] = share
	}
	for c := range categoryCounts {
		stats.Categories = append(stats.Categories, c)
	}
	sort.Strings(stats.Providers)
	sort.Strings(stats.Categories)
	return stats
}
