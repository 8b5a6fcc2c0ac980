package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("Defaults fill missing sections", func(t *testing.T) {
		path := writeConfig(t, "llm:\n  model: gpt-4o\n")

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "gpt-4o", cfg.LLM.Model)
		assert.Equal(t, "elasticsearch", cfg.VectorStore.Backend)
		assert.Equal(t, "documents_text", cfg.Collections.Text)
		assert.Equal(t, "documents_images", cfg.Collections.Image)
		assert.Equal(t, "documents_tables", cfg.Collections.Table)
		assert.Equal(t, 0.7, cfg.LLM.Generation.Temperature)
		assert.Equal(t, 2000, cfg.LLM.Generation.MaxTokens)
		assert.True(t, cfg.Vision.Enabled)
		assert.Equal(t, 10*time.Second, cfg.Vision.FetchTimeout)
		assert.Equal(t, 3*time.Minute, cfg.Server.QueryTimeout)
		assert.Equal(t, "Indonesian", cfg.Generation.DefaultLanguage)
	})

	t.Run("File values override defaults", func(t *testing.T) {
		path := writeConfig(t, `
vectorstore:
  backend: memory
  dimensions: 8
vision:
  enabled: false
  fetch_timeout: 2s
generation:
  default_language: English
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "memory", cfg.VectorStore.Backend)
		assert.Equal(t, 8, cfg.VectorStore.Dimensions)
		assert.False(t, cfg.Vision.Enabled)
		assert.Equal(t, 2*time.Second, cfg.Vision.FetchTimeout)
		assert.Equal(t, "English", cfg.Generation.DefaultLanguage)
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			VectorStore: VectorStoreConfig{Backend: "memory", Dimensions: 4},
			Generation:  GenerationConfig{DefaultLanguage: "English"},
		}
	}

	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("Unknown backend", func(t *testing.T) {
		cfg := valid()
		cfg.VectorStore.Backend = "chroma"
		assert.Error(t, cfg.Validate())
	})

	t.Run("Pgvector without dsn", func(t *testing.T) {
		cfg := valid()
		cfg.VectorStore.Backend = "pgvector"
		assert.Error(t, cfg.Validate())
	})

	t.Run("Non-positive dimensions", func(t *testing.T) {
		cfg := valid()
		cfg.VectorStore.Dimensions = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("Unsupported language", func(t *testing.T) {
		cfg := valid()
		cfg.Generation.DefaultLanguage = "French"
		assert.Error(t, cfg.Validate())
	})
}
