package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"multimodal-rag-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateEmbeddings(t *testing.T) {
	var got embeddingRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		// out of order on purpose
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer server.Close()

	client := NewClient(config.EmbeddingConfig{APIKey: "secret", BaseURL: server.URL, Model: "emb", Dimensions: 2})

	t.Run("Batch keeps input order", func(t *testing.T) {
		vectors, err := client.CreateEmbeddings(context.Background(), []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)
		assert.Equal(t, "emb", got.Model)
		assert.Equal(t, 2, got.Dimensions)
		assert.Equal(t, []string{"a", "b"}, got.Input)
	})

	t.Run("Empty input", func(t *testing.T) {
		_, err := client.CreateEmbeddings(context.Background(), nil)
		assert.Error(t, err)
	})
}

func TestCreateEmbeddingErrors(t *testing.T) {
	t.Run("Non-200 status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota", http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := NewClient(config.EmbeddingConfig{BaseURL: server.URL})
		_, err := client.CreateEmbedding(context.Background(), "q")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("Vector count mismatch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":[]}`))
		}))
		defer server.Close()

		client := NewClient(config.EmbeddingConfig{BaseURL: server.URL})
		_, err := client.CreateEmbedding(context.Background(), "q")
		assert.Error(t, err)
	})
}
