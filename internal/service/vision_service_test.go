package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"multimodal-rag-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	data  []byte
	mime  string
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	f.calls++
	if f.err != nil {
		return nil, "", f.err
	}
	return f.data, f.mime, nil
}

type memoryVisionCache struct {
	entries map[string]string
	sets    int
}

func (c *memoryVisionCache) Get(ctx context.Context, imageURL, query, language string) (string, bool, error) {
	v, ok := c.entries[imageURL+"|"+query+"|"+language]
	return v, ok, nil
}

func (c *memoryVisionCache) Set(ctx context.Context, imageURL, query, language, analysis string) error {
	c.sets++
	c.entries[imageURL+"|"+query+"|"+language] = analysis
	return nil
}

func TestVisionServiceAnalyze(t *testing.T) {
	ctx := context.Background()
	png := []byte("\x89PNG\r\n\x1a\n0000")

	t.Run("Success sends image and caches", func(t *testing.T) {
		client := &fakeLLM{reply: "  A bar chart showing Q3 revenue of 1.2M  "}
		cache := &memoryVisionCache{entries: map[string]string{}}
		svc := NewVisionService(client, &fakeFetcher{data: png, mime: "image/png"}, cache, time.Second)

		outcome := svc.Analyze(ctx, "http://x/chart.png", "What was Q3 revenue?", LanguageEnglish)
		assert.Equal(t, VisionOK, outcome.Status)
		assert.True(t, outcome.Succeeded())
		assert.Equal(t, "A bar chart showing Q3 revenue of 1.2M", outcome.Analysis)
		assert.Equal(t, 1, cache.sets)

		require.Len(t, client.messages, 1)
		parts := client.messages[0][0].Parts
		require.Len(t, parts, 2)
		assert.Contains(t, parts[0].Text, `"What was Q3 revenue?"`)
		require.NotNil(t, parts[1].ImageURL)
		assert.True(t, strings.HasPrefix(parts[1].ImageURL.URL, "data:image/png;base64,"))
	})

	t.Run("Cache hit skips fetch", func(t *testing.T) {
		cache := &memoryVisionCache{entries: map[string]string{
			"http://x/chart.png|q|Indonesian": "cached analysis",
		}}
		fetcher := &fakeFetcher{}
		client := &fakeLLM{}
		outcome := NewVisionService(client, fetcher, cache, time.Second).Analyze(ctx, "http://x/chart.png", "q", LanguageIndonesian)
		assert.Equal(t, VisionCached, outcome.Status)
		assert.True(t, outcome.Succeeded())
		assert.Zero(t, fetcher.calls)
		assert.Zero(t, client.calls)
	})

	t.Run("Fetch failure", func(t *testing.T) {
		client := &fakeLLM{reply: "unused"}
		outcome := NewVisionService(client, &fakeFetcher{err: errors.New("404")}, nil, time.Second).Analyze(ctx, "http://x/gone.png", "q", LanguageEnglish)
		assert.Equal(t, VisionFetchFailed, outcome.Status)
		assert.False(t, outcome.Succeeded())
		assert.Error(t, outcome.Err)
		assert.Zero(t, client.calls)
	})

	t.Run("Model failure", func(t *testing.T) {
		client := &fakeLLM{err: errors.New("rate limited")}
		outcome := NewVisionService(client, &fakeFetcher{data: png, mime: "image/png"}, nil, time.Second).Analyze(ctx, "http://x/a.png", "q", LanguageEnglish)
		assert.Equal(t, VisionModelFailed, outcome.Status)
		assert.False(t, outcome.Succeeded())
	})

	t.Run("Blank analysis", func(t *testing.T) {
		cache := &memoryVisionCache{entries: map[string]string{}}
		client := &fakeLLM{reply: "   \n"}
		outcome := NewVisionService(client, &fakeFetcher{data: png, mime: "image/png"}, cache, time.Second).Analyze(ctx, "http://x/a.png", "q", LanguageEnglish)
		assert.Equal(t, VisionEmpty, outcome.Status)
		assert.False(t, outcome.Succeeded())
		assert.Zero(t, cache.sets)
	})
}

func TestAssetFetcherHTTP(t *testing.T) {
	gif := []byte("GIF89a......")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chart.gif":
			_, _ = w.Write(gif)
		case "/blob":
			_, _ = w.Write([]byte("not really an image"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	fetcher := NewAssetFetcher(config.MinIOConfig{}, time.Second)

	data, mime, err := fetcher.Fetch(context.Background(), srv.URL+"/chart.gif")
	require.NoError(t, err)
	assert.Equal(t, gif, data)
	assert.Equal(t, "image/gif", mime)

	_, mime, err = fetcher.Fetch(context.Background(), srv.URL+"/blob")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)

	_, _, err = fetcher.Fetch(context.Background(), srv.URL+"/missing.png")
	assert.Error(t, err)
}
