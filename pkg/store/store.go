package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/xhad/research/internal/models"
	"github.com/xhad/research/internal/types"
	"go.uber.org/zap"
)

const (
	BackendChromem  = "chromem"
	BackendPgVector = "pgvector"
	BackendQdrant   = "qdrant"
)

// DefaultCollection names the collection every backend indexes into.
const DefaultCollection = "real_estate"

var ErrUnknownBackend = errors.New("unknown vector store backend")

type StoreConfig struct {
	Backend  string
	Chromem  ChromemConfig
	Postgres VectorStoreConfig
	Qdrant   QdrantConfig
}

var (
	_ types.VectorStore = (*ChromemStore)(nil)
	_ types.VectorStore = (*VectorStore)(nil)
	_ types.VectorStore = (*QdrantStore)(nil)
)

// New opens the backend named by config.Backend, defaulting to chromem.
func New(ctx context.Context, config StoreConfig, embedder embeddings.Embedder, logger *zap.Logger) (types.VectorStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	switch config.Backend {
	case "", BackendChromem:
		return NewChromemStore(config.Chromem, embedder, logger)
	case BackendPgVector:
		return NewWithConfig(ctx, config.Postgres, embedder, logger)
	case BackendQdrant:
		return NewQdrantStore(config.Qdrant, embedder, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, config.Backend)
	}
}

// entryID returns the identifier assigned at ingestion, or a fresh one.
func entryID(doc schema.Document) string {
	if id, ok := doc.Metadata[models.IDKey].(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

func searchOptions(options []vectorstores.Option) vectorstores.Options {
	opts := vectorstores.Options{}
	for _, opt := range options {
		opt(&opts)
	}
	return opts
}

func deduplicate(ctx context.Context, opts vectorstores.Options, docs []schema.Document) []schema.Document {
	if opts.Deduplicater == nil {
		return docs
	}
	kept := make([]schema.Document, 0, len(docs))
	for _, doc := range docs {
		if !opts.Deduplicater(ctx, doc) {
			kept = append(kept, doc)
		}
	}
	return kept
}

func embedderFor(opts vectorstores.Options, fallback embeddings.Embedder) embeddings.Embedder {
	if opts.Embedder != nil {
		return opts.Embedder
	}
	return fallback
}

// stringFilters accepts a flat map filter on metadata values.
func stringFilters(filters any) (map[string]string, error) {
	switch f := filters.(type) {
	case nil:
		return nil, nil
	case map[string]string:
		return f, nil
	case map[string]any:
		out := make(map[string]string, len(f))
		for k, v := range f {
			out[k] = fmt.Sprint(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported filter type %T", filters)
	}
}
