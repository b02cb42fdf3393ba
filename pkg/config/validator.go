package config

import (
	"fmt"
	"net/url"

	"go.uber.org/zap/zapcore"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	switch c.LLM.Provider {
	case "ollama", "openai":
	default:
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown provider %q", c.LLM.Provider),
		})
	}

	if c.LLM.Provider == "openai" && c.LLM.APIKey == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.api_key",
			Message: "api key is required, set GROQ_API_KEY or OPENAI_API_KEY",
		})
	}

	if !validURL(c.LLM.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid base URL",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if t := c.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	// Validate Embedder config
	switch c.Embedder.Provider {
	case "ollama", "openai":
	default:
		errors = append(errors, ValidationError{
			Field:   "embedder.provider",
			Message: fmt.Sprintf("unknown provider %q", c.Embedder.Provider),
		})
	}

	if c.Embedder.BaseURL != "" && !validURL(c.Embedder.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "embedder.base_url",
			Message: "invalid base URL",
		})
	}

	// Validate Store config
	switch c.Store.Backend {
	case "chromem":
	case "pgvector":
		if c.Store.Database.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "store.database.url",
				Message: "database url is required for the pgvector backend",
			})
		}
	case "qdrant":
		if c.Store.Qdrant.Port < 1 || c.Store.Qdrant.Port > 65535 {
			errors = append(errors, ValidationError{
				Field:   "store.qdrant.port",
				Message: "port must be between 1 and 65535",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Message: fmt.Sprintf("unknown backend %q", c.Store.Backend),
		})
	}

	if c.Store.Database.URL != "" {
		if _, err := url.Parse(c.Store.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "store.database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Store.Database.VectorDim < 0 {
		errors = append(errors, ValidationError{
			Field:   "store.database.vector_dim",
			Message: "vector_dim cannot be negative",
		})
	}

	// Validate Scraper config
	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Scraper.Timeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.timeout",
			Message: "timeout cannot be negative",
		})
	}

	// Validate Processor config
	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Processor.ChunkOverlap < 0 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	if c.UI.MaxURLs < 1 {
		errors = append(errors, ValidationError{
			Field:   "ui.max_urls",
			Message: "max_urls must be positive",
		})
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Message: "port must be between 1 and 65535",
		})
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid log level %q", c.Log.Level),
		})
	}

	return errors
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}
