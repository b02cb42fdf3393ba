package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		Provider    string   `yaml:"provider"`
		BaseURL     string   `yaml:"base_url"`
		APIKey      string   `yaml:"api_key"`
		Model       string   `yaml:"model"`
		MaxTokens   int      `yaml:"max_tokens"`
		Temperature *float64 `yaml:"temperature"` // nil selects the default; 0 is kept
	} `yaml:"llm"`

	Embedder struct {
		Provider  string `yaml:"provider"`
		BaseURL   string `yaml:"base_url"`
		APIKey    string `yaml:"api_key"`
		Model     string `yaml:"model"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"embedder"`

	Store struct {
		Backend    string `yaml:"backend"`
		Collection string `yaml:"collection"`
		Path       string `yaml:"path"`
		Compress   bool   `yaml:"compress"`

		Database struct {
			URL       string `yaml:"url"`
			TableName string `yaml:"table_name"`
			VectorDim int    `yaml:"vector_dim"`
			BatchSize int    `yaml:"batch_size"`
		} `yaml:"database"`

		Qdrant struct {
			Host   string `yaml:"host"`
			Port   int    `yaml:"port"`
			APIKey string `yaml:"api_key"`
			UseTLS bool   `yaml:"use_tls"`
		} `yaml:"qdrant"`
	} `yaml:"store"`

	Scraper struct {
		UserAgent        string        `yaml:"user_agent"`
		Timeout          time.Duration `yaml:"timeout"`
		RateLimit        float64       `yaml:"rate_limit"`
		MinContentLength int           `yaml:"min_content_length"`
	} `yaml:"scraper"`

	Processor struct {
		ChunkSize    int      `yaml:"chunk_size"`
		ChunkOverlap int      `yaml:"chunk_overlap"`
		Separators   []string `yaml:"separators"`
	} `yaml:"processor"`

	UI struct {
		MaxURLs int    `yaml:"max_urls"`
		Title   string `yaml:"title"`
	} `yaml:"ui"`

	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

// DefaultLocations are searched in order when no config path is given.
func DefaultLocations() []string {
	return []string{
		"config.yaml",
		"config.yml",
		filepath.Join(os.Getenv("HOME"), ".config/research/config.yaml"),
		"/etc/research/config.yaml",
	}
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		for _, loc := range DefaultLocations() {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Environment wins over the file; defaults fill whatever is left.
	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "openai"
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == "openai" {
		config.LLM.BaseURL = "https://api.groq.com/openai/v1"
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == "ollama" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "openai/gpt-oss-20b"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 1000
	}
	if config.LLM.Temperature == nil {
		temperature := 0.9
		config.LLM.Temperature = &temperature
	}

	if config.Embedder.Provider == "" {
		config.Embedder.Provider = "ollama"
	}
	if config.Embedder.BaseURL == "" && config.Embedder.Provider == "ollama" {
		config.Embedder.BaseURL = "http://localhost:11434"
	}
	if config.Embedder.Model == "" && config.Embedder.Provider == "ollama" {
		config.Embedder.Model = "nomic-embed-text"
	}
	if config.Embedder.BatchSize == 0 {
		config.Embedder.BatchSize = 512
	}

	if config.Store.Backend == "" {
		config.Store.Backend = "chromem"
	}
	if config.Store.Collection == "" {
		config.Store.Collection = "real_estate"
	}
	if config.Store.Database.TableName == "" {
		config.Store.Database.TableName = config.Store.Collection
	}
	if config.Store.Database.BatchSize == 0 {
		config.Store.Database.BatchSize = 100
	}
	if config.Store.Qdrant.Host == "" {
		config.Store.Qdrant.Host = "localhost"
	}
	if config.Store.Qdrant.Port == 0 {
		config.Store.Qdrant.Port = 6334
	}

	if config.Scraper.Timeout == 0 {
		config.Scraper.Timeout = 30 * time.Second
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if config.Scraper.MinContentLength == 0 {
		config.Scraper.MinContentLength = 1
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1000
	}
	if len(config.Processor.Separators) == 0 {
		config.Processor.Separators = []string{"\n\n", "\n", ".", " "}
	}

	if config.UI.MaxURLs == 0 {
		config.UI.MaxURLs = 3
	}
	if config.UI.Title == "" {
		config.UI.Title = "URL Research Assistant"
	}

	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}

func mergeWithEnv(config *Config) {
	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = provider
	}
	if baseURL := os.Getenv("LLM_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		config.LLM.Model = model
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.LLM.APIKey = key
	}
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		config.LLM.APIKey = key
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.Embedder.BaseURL = baseURL
		if config.LLM.Provider == "ollama" {
			config.LLM.BaseURL = baseURL
		}
	}
	if model := os.Getenv("EMBEDDER_MODEL"); model != "" {
		config.Embedder.Model = model
	}
	if backend := os.Getenv("VECTOR_STORE"); backend != "" {
		config.Store.Backend = backend
	}
	if dir := os.Getenv("VECTORSTORE_DIR"); dir != "" {
		config.Store.Path = dir
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Store.Database.URL = dbURL
	}
	if host := os.Getenv("QDRANT_HOST"); host != "" {
		config.Store.Qdrant.Host = host
	}
	if port, err := strconv.Atoi(os.Getenv("QDRANT_PORT")); err == nil {
		config.Store.Qdrant.Port = port
	}
	if key := os.Getenv("QDRANT_API_KEY"); key != "" {
		config.Store.Qdrant.APIKey = key
	}
	if port, err := strconv.Atoi(os.Getenv("PORT")); err == nil {
		config.Server.Port = port
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
}
