package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/xhad/research/internal/models"
	"go.uber.org/zap"
)

// ChromemConfig configures the embedded persistent vector store.
type ChromemConfig struct {
	// Path is the persistence directory. Defaults to resources/vectorstore
	// next to the executable.
	Path       string
	Collection string
	Compress   bool
}

func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = DefaultChromemPath()
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
}

// DefaultChromemPath resolves resources/vectorstore relative to the running
// executable, falling back to the working directory.
func DefaultChromemPath() string {
	exe, err := os.Executable()
	if err != nil {
		return filepath.Join("resources", "vectorstore")
	}
	return filepath.Join(filepath.Dir(exe), "resources", "vectorstore")
}

// ChromemStore keeps every entry in one chromem-go collection persisted on disk.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   embeddings.Embedder
	config     ChromemConfig
	logger     *zap.Logger

	mu sync.RWMutex
}

func NewChromemStore(config ChromemConfig, embedder embeddings.Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	path, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	s := &ChromemStore{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	s.collection, err = db.GetOrCreateCollection(config.Collection, nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", config.Collection, err)
	}

	logger.Info("chromem store initialized",
		zap.String("path", path),
		zap.String("collection", config.Collection),
		zap.Int("documents", s.collection.Count()),
	)

	return s, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// AddDocuments embeds docs in one batch and adds them to the collection.
func (s *ChromemStore) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
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

	ids := make([]string, len(docs))
	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		ids[i] = entryID(doc)
		chromemDocs[i] = chromem.Document{
			ID:        ids[i],
			Content:   texts[i],
			Metadata:  toStringMetadata(doc.Metadata),
			Embedding: vectors[i],
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.collection.AddDocuments(ctx, chromemDocs, 4); err != nil {
		return nil, fmt.Errorf("adding documents: %w", err)
	}

	s.logger.Debug("added documents to chromem",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(docs)),
	)
	return ids, nil
}

// SimilaritySearch returns up to numDocuments entries closest to query. An
// empty collection yields no documents.
func (s *ChromemStore) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	if numDocuments <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", numDocuments)
	}
	opts := searchOptions(options)
	where, err := stringFilters(opts.Filters)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := s.collection.Count()
	if count == 0 {
		return []schema.Document{}, nil
	}
	if numDocuments > count {
		numDocuments = count
	}

	vector, err := embedderFor(opts, s.embedder).EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := s.collection.QueryEmbedding(ctx, vector, numDocuments, where, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	docs := make([]schema.Document, 0, len(results))
	for _, r := range results {
		if opts.ScoreThreshold > 0 && r.Similarity < opts.ScoreThreshold {
			continue
		}
		docs = append(docs, schema.Document{
			PageContent: r.Content,
			Metadata:    fromStringMetadata(r.Metadata),
			Score:       r.Similarity,
		})
	}
	return docs, nil
}

// Reset drops the collection, including its files, and creates it again empty.
func (s *ChromemStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(s.config.Collection); err != nil {
		return fmt.Errorf("deleting collection %s: %w", s.config.Collection, err)
	}
	collection, err := s.db.CreateCollection(s.config.Collection, nil, s.embeddingFunc())
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
	}
	s.collection = collection
	return nil
}

func (s *ChromemStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection.Count(), nil
}

// Close is a no-op; chromem persists each document as it is added.
func (s *ChromemStore) Close() error {
	return nil
}

func toStringMetadata(metadata map[string]any) map[string]string {
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func fromStringMetadata(metadata map[string]string) map[string]any {
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
