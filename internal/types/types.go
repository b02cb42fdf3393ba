package types

import (
	"context"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/xhad/research/internal/models"
)

// Core interfaces
type Fetcher interface {
	Fetch(ctx context.Context, urls []string) ([]models.Document, error)
}

type Splitter interface {
	Split(docs []models.Document) ([]models.Chunk, error)
}

// VectorStore is a langchaingo vector store whose contents can be wiped.
type VectorStore interface {
	vectorstores.VectorStore
	Reset(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	Close() error
}

type Synthesizer interface {
	Answer(ctx context.Context, query string, retriever schema.Retriever) (*models.Answer, error)
}
