package rag

import (
	"context"
	"fmt"

	"github.com/xhad/research/pkg/config"
	"github.com/xhad/research/pkg/llm"
	"github.com/xhad/research/pkg/processor"
	"github.com/xhad/research/pkg/scraper"
	"github.com/xhad/research/pkg/store"
	"go.uber.org/zap"
)

func ChatConfig(cfg *config.Config) llm.ChatConfig {
	return llm.ChatConfig{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}
}

func EmbedderConfig(cfg *config.Config) llm.EmbedderConfig {
	return llm.EmbedderConfig{
		Provider:  cfg.Embedder.Provider,
		Model:     cfg.Embedder.Model,
		BaseURL:   cfg.Embedder.BaseURL,
		APIKey:    cfg.Embedder.APIKey,
		BatchSize: cfg.Embedder.BatchSize,
	}
}

func StoreConfig(cfg *config.Config) store.StoreConfig {
	return store.StoreConfig{
		Backend: cfg.Store.Backend,
		Chromem: store.ChromemConfig{
			Path:       cfg.Store.Path,
			Collection: cfg.Store.Collection,
			Compress:   cfg.Store.Compress,
		},
		Postgres: store.VectorStoreConfig{
			ConnString: cfg.Store.Database.URL,
			TableName:  cfg.Store.Database.TableName,
			VectorDim:  cfg.Store.Database.VectorDim,
			BatchSize:  cfg.Store.Database.BatchSize,
		},
		Qdrant: store.QdrantConfig{
			Host:       cfg.Store.Qdrant.Host,
			Port:       cfg.Store.Qdrant.Port,
			APIKey:     cfg.Store.Qdrant.APIKey,
			UseTLS:     cfg.Store.Qdrant.UseTLS,
			Collection: cfg.Store.Collection,
		},
	}
}

// NewComponentFactory builds the language model, embedder and vector store
// described by cfg.
func NewComponentFactory(cfg *config.Config, logger *zap.Logger) ComponentFactory {
	return func(ctx context.Context) (*Components, error) {
		chat := ChatConfig(cfg)
		model, err := llm.NewModel(chat)
		if err != nil {
			return nil, err
		}
		synthesizer, err := llm.NewSourcesChain(model, chat)
		if err != nil {
			return nil, err
		}

		embedder, err := llm.NewEmbedderWithConfig(EmbedderConfig(cfg))
		if err != nil {
			return nil, err
		}
		vectorStore, err := store.New(ctx, StoreConfig(cfg), embedder, logger)
		if err != nil {
			return nil, fmt.Errorf("opening vector store: %w", err)
		}

		return &Components{Store: vectorStore, Synthesizer: synthesizer}, nil
	}
}

// NewFromConfig wires the fetcher, chunker and component factory from cfg.
func NewFromConfig(cfg *config.Config, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fetcher, err := scraper.NewWithConfig(scraper.ScraperConfig{
		UserAgent:        cfg.Scraper.UserAgent,
		Timeout:          cfg.Scraper.Timeout,
		RateLimit:        cfg.Scraper.RateLimit,
		MinContentLength: cfg.Scraper.MinContentLength,
		Logger:           logger.Named("scraper"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize scraper: %w", err)
	}

	splitter, err := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    cfg.Processor.ChunkSize,
		ChunkOverlap: cfg.Processor.ChunkOverlap,
		Separators:   cfg.Processor.Separators,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize processor: %w", err)
	}

	return New(Config{
		Fetcher:  fetcher,
		Splitter: splitter,
		Factory:  NewComponentFactory(cfg, logger.Named("store")),
		Logger:   logger.Named("pipeline"),
	})
}
