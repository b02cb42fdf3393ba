package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"github.com/xhad/research/internal/models"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

const (
	DefaultModel       = "openai/gpt-oss-20b"
	DefaultTemperature = 0.9
	DefaultMaxTokens   = 1000
	DefaultOllamaURL   = "http://localhost:11434"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider        string
	Model           string
	BaseURL         string
	APIKey          string
	Temperature     *float64 // nil selects DefaultTemperature
	MaxTokens       int
	SystemTemplate  string
	ContextTemplate string
}

// ChatEngine answers a question directly from a set of documents.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

func (c *ChatConfig) applyDefaults() error {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if t := c.temperature(); t < 0 || t > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max tokens cannot be negative")
	} else if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.SystemTemplate == "" {
		c.SystemTemplate = "You are a research assistant. Answer questions using only the web pages provided as context."
	}
	if c.ContextTemplate == "" {
		c.ContextTemplate = "Context:\n%s\nQuestion: %s"
	}
	return nil
}

// NewModel builds the language model client for the configured provider.
// The openai provider covers any OpenAI-compatible endpoint such as Groq.
func NewModel(config ChatConfig) (llms.Model, error) {
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}

	switch config.Provider {
	case ProviderOllama:
		baseURL := config.BaseURL
		if baseURL == "" {
			baseURL = DefaultOllamaURL
		}
		llm, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(baseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		return llm, nil
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithModel(config.Model)}
		if config.APIKey != "" {
			opts = append(opts, openai.WithToken(config.APIKey))
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", config.Provider)
	}
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	llm, err := NewModel(config)
	if err != nil {
		return nil, err
	}
	return NewWithModel(config, llm)
}

// NewWithModel creates a ChatEngine around an existing model.
func NewWithModel(config ChatConfig, llm llms.Model) (*ChatEngine, error) {
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	return &ChatEngine{
		config: config,
		llm:    llm,
	}, nil
}

func (c ChatConfig) temperature() float64 {
	if c.Temperature == nil {
		return DefaultTemperature
	}
	return *c.Temperature
}

// CallOptions returns the sampling options every request is made with.
func (c ChatConfig) CallOptions() []llms.CallOption {
	return []llms.CallOption{
		llms.WithTemperature(c.temperature()),
		llms.WithMaxTokens(c.MaxTokens),
	}
}

// Chat generates a response to query with docs stuffed into the prompt.
func (ce *ChatEngine) Chat(ctx context.Context, query string, docs []schema.Document) (*models.Answer, error) {
	var contextBuilder strings.Builder
	for _, doc := range docs {
		contextBuilder.WriteString(fmt.Sprintf("Source: %s\n%s\n\n", models.SourceOf(doc), doc.PageContent))
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, ce.config.SystemTemplate),
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf(ce.config.ContextTemplate, contextBuilder.String(), query)),
	}

	response, err := ce.llm.GenerateContent(ctx, content, ce.config.CallOptions()...)
	if err != nil {
		return nil, fmt.Errorf("chat error: %w", err)
	}
	if response == nil || len(response.Choices) == 0 {
		return nil, fmt.Errorf("chat error: empty response from model")
	}

	return &models.Answer{
		Text:    strings.TrimSpace(response.Choices[0].Content),
		Sources: distinctSources(docs),
	}, nil
}

// distinctSources lists the non-empty sources of docs in first-seen order.
func distinctSources(docs []schema.Document) []string {
	sources := []string{}
	seen := make(map[string]bool)

	for _, doc := range docs {
		source := models.SourceOf(doc)
		if source == "" || seen[source] {
			continue
		}
		sources = append(sources, source)
		seen[source] = true
	}

	return sources
}
