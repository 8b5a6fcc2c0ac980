package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"multimodal-rag-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	chunks []string
}

func (w *recordingWriter) WriteMessage(messageType int, data []byte) error {
	w.chunks = append(w.chunks, string(data))
	return nil
}

func TestMessageMarshalJSON(t *testing.T) {
	plain, err := json.Marshal(Message{Role: "user", Content: "hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":"hi"}`, string(plain))

	multi, err := json.Marshal(Message{Role: "user", Parts: []ContentPart{
		TextPart("describe"),
		ImagePart("image/jpeg", "QUJD"),
	}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":[
		{"type":"text","text":"describe"},
		{"type":"image_url","image_url":{"url":"data:image/jpeg;base64,QUJD"}}
	]}`, string(multi))
}

func TestChat(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		got = map[string]interface{}{}
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Revenue was 10M."}}]}`))
	}))
	defer server.Close()

	client := NewClient(config.LLMConfig{
		BaseURL:    server.URL,
		Model:      "gpt-test",
		Generation: config.LLMGenerationConfig{Temperature: 0.7, MaxTokens: 2000},
	})

	answer, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "q"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Revenue was 10M.", answer)
	assert.Equal(t, "gpt-test", got["model"])
	assert.Equal(t, false, got["stream"])
	assert.Equal(t, 0.7, got["temperature"])
	assert.Equal(t, float64(2000), got["max_tokens"])

	t.Run("Explicit params win", func(t *testing.T) {
		temp := 0.1
		_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "q"}}, &GenerationParams{Temperature: &temp})
		require.NoError(t, err)
		assert.Equal(t, 0.1, got["temperature"])
		assert.NotContains(t, got, "max_tokens")
	})
}

func TestChatErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewClient(config.LLMConfig{BaseURL: server.URL}).Chat(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestStreamChatMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		for _, piece := range []string{"Rev", "enue"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", piece)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	writer := &recordingWriter{}
	err := NewClient(config.LLMConfig{BaseURL: server.URL}).StreamChatMessages(context.Background(), []Message{{Role: "user", Content: "q"}}, nil, writer)
	require.NoError(t, err)
	assert.Equal(t, []string{"Rev", "enue"}, writer.chunks)
}

func TestNewVisionClient(t *testing.T) {
	c := NewVisionClient(config.LLMConfig{Model: "gpt-text"}, config.VisionConfig{Model: "gpt-vision", Temperature: 0.3, MaxTokens: 1000})
	assert.Equal(t, "gpt-vision", c.Model())
	assert.Equal(t, 1000, c.(*openAICompatibleClient).cfg.Generation.MaxTokens)
}
