package llm

import (
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const DefaultEmbeddingModel = "nomic-embed-text"

type EmbedderConfig struct {
	Provider  string
	Model     string
	BaseURL   string
	APIKey    string
	BatchSize int
}

// NewEmbedderWithConfig returns the embedding function used by every vector store.
func NewEmbedderWithConfig(config EmbedderConfig) (embeddings.Embedder, error) {
	if config.Provider == "" {
		config.Provider = ProviderOllama
	}
	if config.BatchSize < 0 {
		return nil, fmt.Errorf("batch size cannot be negative")
	}

	var client embeddings.EmbedderClient
	switch config.Provider {
	case ProviderOllama:
		if config.Model == "" {
			config.Model = DefaultEmbeddingModel
		}
		if config.BaseURL == "" {
			config.BaseURL = DefaultOllamaURL
		}
		emb, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		client = emb
	case ProviderOpenAI:
		opts := []openai.Option{}
		if config.Model != "" {
			opts = append(opts, openai.WithEmbeddingModel(config.Model))
		}
		if config.APIKey != "" {
			opts = append(opts, openai.WithToken(config.APIKey))
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		emb, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		client = emb
	default:
		return nil, fmt.Errorf("unknown embedder provider %q", config.Provider)
	}

	var opts []embeddings.Option
	if config.BatchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(config.BatchSize))
	}
	return embeddings.NewEmbedder(client, opts...)
}
