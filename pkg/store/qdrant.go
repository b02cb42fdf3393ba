package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/qdrant/go-client/qdrant"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/xhad/research/internal/models"
	"go.uber.org/zap"
)

const contentKey = "content"

type QdrantConfig struct {
	Host       string
	Port       int // gRPC port
	APIKey     string
	UseTLS     bool
	Collection string
}

func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
}

// QdrantStore keeps entries as points in one Qdrant collection. The
// collection is created on first insert, sized to the embedding dimension.
type QdrantStore struct {
	client   *qdrant.Client
	embedder embeddings.Embedder
	config   QdrantConfig
	logger   *zap.Logger

	mu sync.Mutex
}

func NewQdrantStore(config QdrantConfig, embedder embeddings.Embedder, logger *zap.Logger) (*QdrantStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	logger.Info("qdrant store initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.Collection),
	)

	return &QdrantStore{
		client:   client,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context, dim int) error {
	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
	}
	s.logger.Debug("created qdrant collection", zap.String("collection", s.config.Collection), zap.Int("dim", dim))
	return nil
}

func (s *QdrantStore) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	opts := searchOptions(options)
	docs = deduplicate(ctx, opts, docs)
	if len(docs) == 0 {
		return []string{}, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = models.ValidText(doc.PageContent)
	}
	vectors, err := embedderFor(opts, s.embedder).EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureCollection(ctx, len(vectors[0])); err != nil {
		return nil, err
	}

	ids := make([]string, len(docs))
	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		ids[i] = entryID(doc)

		payload := make(map[string]any, len(doc.Metadata)+1)
		for k, v := range doc.Metadata {
			payload[k] = fmt.Sprint(v)
		}
		payload[contentKey] = texts[i]

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(ids[i]),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(payload),
		}
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.config.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return nil, fmt.Errorf("upserting points: %w", err)
	}

	s.logger.Debug("added documents to qdrant", zap.Int("count", len(docs)))
	return ids, nil
}

func (s *QdrantStore) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	if numDocuments <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", numDocuments)
	}
	opts := searchOptions(options)
	where, err := stringFilters(opts.Filters)
	if err != nil {
		return nil, err
	}

	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return nil, fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}
	if !exists {
		return []schema.Document{}, nil
	}

	vector, err := embedderFor(opts, s.embedder).EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	request := &qdrant.QueryPoints{
		CollectionName: s.config.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(numDocuments)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if opts.ScoreThreshold > 0 {
		request.ScoreThreshold = qdrant.PtrOf(opts.ScoreThreshold)
	}
	if len(where) > 0 {
		conditions := make([]*qdrant.Condition, 0, len(where))
		for k, v := range where {
			conditions = append(conditions, qdrant.NewMatch(k, v))
		}
		request.Filter = &qdrant.Filter{Must: conditions}
	}

	points, err := s.client.Query(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	docs := make([]schema.Document, 0, len(points))
	for _, point := range points {
		metadata := make(map[string]any, len(point.GetPayload()))
		var content string
		for k, v := range point.GetPayload() {
			if k == contentKey {
				content = v.GetStringValue()
				continue
			}
			metadata[k] = v.GetStringValue()
		}
		docs = append(docs, schema.Document{
			PageContent: content,
			Metadata:    metadata,
			Score:       point.GetScore(),
		})
	}
	return docs, nil
}

// Reset drops the collection; the next insert recreates it.
func (s *QdrantStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}
	if !exists {
		return nil
	}
	if err := s.client.DeleteCollection(ctx, s.config.Collection); err != nil {
		return fmt.Errorf("deleting collection %s: %w", s.config.Collection, err)
	}
	return nil
}

func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return 0, fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}
	if !exists {
		return 0, nil
	}

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.config.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}
	return int(count), nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}
