package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LLM_PROVIDER", "LLM_BASE_URL", "LLM_MODEL", "OPENAI_API_KEY", "GROQ_API_KEY",
		"OLLAMA_BASE_URL", "EMBEDDER_MODEL", "VECTOR_STORE", "VECTORSTORE_DIR",
		"DATABASE_URL", "QDRANT_HOST", "QDRANT_PORT", "QDRANT_API_KEY", "PORT", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig(t *testing.T) {
	clearEnv(t)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
llm:
  provider: "ollama"
  base_url: "http://localhost:11434"
  model: "llama3"
  max_tokens: 800
  temperature: 0.5

store:
  backend: "pgvector"
  database:
    url: "postgres://localhost:5432/test"
    table_name: "test_docs"
    vector_dim: 768
    batch_size: 50

scraper:
  timeout: 10s
  rate_limit: 1.5

processor:
  chunk_size: 500

server:
  port: 9090
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "ollama", config.LLM.Provider)
	assert.Equal(t, "http://localhost:11434", config.LLM.BaseURL)
	assert.Equal(t, "llama3", config.LLM.Model)
	assert.Equal(t, 800, config.LLM.MaxTokens)
	require.NotNil(t, config.LLM.Temperature)
	assert.Equal(t, 0.5, *config.LLM.Temperature)
	assert.Equal(t, "pgvector", config.Store.Backend)
	assert.Equal(t, "postgres://localhost:5432/test", config.Store.Database.URL)
	assert.Equal(t, "test_docs", config.Store.Database.TableName)
	assert.Equal(t, 10*time.Second, config.Scraper.Timeout)
	assert.Equal(t, 1.5, config.Scraper.RateLimit)
	assert.Equal(t, 500, config.Processor.ChunkSize)
	assert.Equal(t, 9090, config.Server.Port)

	// Unset sections fall back to defaults.
	assert.Equal(t, "nomic-embed-text", config.Embedder.Model)
	assert.Equal(t, 3, config.UI.MaxURLs)
	assert.Empty(t, config.Validate())
}

func TestLoadConfigZeroTemperature(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  temperature: 0\n"), 0644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, config.LLM.Temperature)
	assert.Zero(t, *config.LLM.Temperature)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [unclosed"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	clearEnv(t)

	config, err := getDefaultConfig()
	require.NoError(t, err)

	assert.Equal(t, "openai", config.LLM.Provider)
	assert.Equal(t, "https://api.groq.com/openai/v1", config.LLM.BaseURL)
	assert.Equal(t, "openai/gpt-oss-20b", config.LLM.Model)
	require.NotNil(t, config.LLM.Temperature)
	assert.Equal(t, 0.9, *config.LLM.Temperature)
	assert.Equal(t, 1000, config.LLM.MaxTokens)
	assert.Equal(t, "chromem", config.Store.Backend)
	assert.Equal(t, "real_estate", config.Store.Collection)
	assert.Equal(t, 1000, config.Processor.ChunkSize)
	assert.Zero(t, config.Processor.ChunkOverlap)
	assert.Equal(t, []string{"\n\n", "\n", ".", " "}, config.Processor.Separators)
	assert.Equal(t, 8080, config.Server.Port)
}

func TestConfigValidation(t *testing.T) {
	clearEnv(t)

	valid, err := getDefaultConfig()
	require.NoError(t, err)
	valid.LLM.APIKey = "test-key"
	assert.Empty(t, valid.Validate())

	invalid, err := getDefaultConfig()
	require.NoError(t, err)
	invalid.LLM.BaseURL = "invalid-url"
	invalid.LLM.MaxTokens = 5000
	tooHot := 3.0
	invalid.LLM.Temperature = &tooHot
	invalid.Store.Backend = "pgvector"
	invalid.Log.Level = "loud"

	errors := invalid.Validate()
	expected := []string{
		"llm.api_key: api key is required",
		"llm.base_url: invalid base URL",
		"llm.max_tokens: max_tokens must be between 1 and 4096",
		"llm.temperature: temperature must be between 0 and 2",
		"store.database.url: database url is required",
		"log.level: invalid log level",
	}
	require.Len(t, errors, len(expected))
	for i, msg := range expected {
		assert.Contains(t, errors[i].Error(), msg)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	t.Setenv("QDRANT_PORT", "7000")
	t.Setenv("PORT", "3000")

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "ollama", config.LLM.Provider)
	assert.Equal(t, "http://env-ollama:11434", config.LLM.BaseURL)
	assert.Equal(t, "http://env-ollama:11434", config.Embedder.BaseURL)
	assert.Equal(t, "gsk-test", config.LLM.APIKey)
	assert.Equal(t, "postgres://env-db:5432/test", config.Store.Database.URL)
	assert.Equal(t, 7000, config.Store.Qdrant.Port)
	assert.Equal(t, 3000, config.Server.Port)
}

func TestLoadEnvFiles(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	first := filepath.Join(dir, "first.env")
	second := filepath.Join(dir, "second.env")
	require.NoError(t, os.WriteFile(first, []byte("GROQ_API_KEY=from-first\nLLM_MODEL=first-model\n"), 0644))
	require.NoError(t, os.WriteFile(second, []byte("GROQ_API_KEY=from-second\n"), 0644))

	t.Setenv("GROQ_API_KEY", "from-shell")

	err := loadEnvFiles(first, second, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "from-second", os.Getenv("GROQ_API_KEY"))
	assert.Equal(t, "first-model", os.Getenv("LLM_MODEL"))
}

func TestEnvFilesExecutableLast(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	files := EnvFiles()
	require.Len(t, files, 2)
	assert.Equal(t, ".env", files[0])
	assert.Equal(t, filepath.Join(filepath.Dir(exe), ".env"), files[len(files)-1])
}

func TestNewLogger(t *testing.T) {
	config := &Config{}
	config.Log.Level = "debug"
	logger, err := config.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	config.Log.Level = "loud"
	_, err = config.NewLogger()
	assert.Error(t, err)
}
