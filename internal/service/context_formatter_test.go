package service

import (
	"context"
	"errors"
	"testing"

	"multimodal-rag-go/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestContextFormatterSections(t *testing.T) {
	f := NewContextFormatter(nil, false)

	got := f.Format(context.Background(), q3Result(), "What was Q3 revenue?", true, LanguageEnglish)
	want := "=== TEXT CONTENT ===\n" +
		"\n" +
		"[TEXT-1] (Page 4)\nRevenue in Q3 grew 15% year over year.\n" +
		"\n" +
		"\n=== TABLES ===\n" +
		"\n" +
		"[TABLE-1] (Page 5, Format: HTML)\n<table><tr><td>Q3</td><td>1.2M</td></tr></table>\n"
	assert.Equal(t, want, got)
}

func TestContextFormatterEmpty(t *testing.T) {
	f := NewContextFormatter(panickingVision{}, true)
	assert.Equal(t, "", f.Format(context.Background(), model.NewRetrievalResult(), "q", true, LanguageIndonesian))
}

func TestContextFormatterPlainTableAndMissingPage(t *testing.T) {
	r := model.NewRetrievalResult()
	r.Tables = append(r.Tables, model.NewRetrievedItem(model.ContentTable, model.Document{Content: "Q3 | 1.2M"}, nil))

	got := NewContextFormatter(nil, false).Format(context.Background(), r, "q", false, LanguageEnglish)
	assert.Contains(t, got, "[TABLE-1] (Page N/A, Format: Plain Text)\nQ3 | 1.2M\n")
}

func TestContextFormatterVision(t *testing.T) {
	ctx := context.Background()
	r := model.NewRetrievalResult()
	r.Images = append(r.Images,
		imageItem("http://minio:9000/images/chart.png", "Bar chart of revenue", 3),
		imageItem("http://minio:9000/images/missing.png", "Pie chart", 7),
	)

	t.Run("Global switch off never calls vision", func(t *testing.T) {
		f := NewContextFormatter(panickingVision{}, false)
		got := f.Format(ctx, r, "q", true, LanguageEnglish)
		assert.Contains(t, got, "[IMAGE-1] (Page 3)\n\nVisual Analysis: Bar chart of revenue\n\nURL: http://minio:9000/images/chart.png\n")
		assert.Contains(t, got, "Visual Analysis: Pie chart\n")
		assert.NotContains(t, got, "(Stored)")
	})

	t.Run("Per-call switch off never calls vision", func(t *testing.T) {
		f := NewContextFormatter(panickingVision{}, true)
		assert.NotPanics(t, func() {
			got := f.Format(ctx, r, "q", false, LanguageEnglish)
			assert.Contains(t, got, "Visual Analysis: Bar chart of revenue\n")
		})
		assert.False(t, f.VisionActive(false))
		assert.True(t, f.VisionActive(true))
	})

	t.Run("Real-time with stored fallback", func(t *testing.T) {
		vision := &fakeVision{outcomes: map[string]VisionOutcome{
			"http://minio:9000/images/chart.png": {Status: VisionOK, Analysis: "Revenue rose to {1.2M}"},
		}}
		f := NewContextFormatter(vision, true)
		got := f.Format(ctx, r, "q", true, LanguageEnglish)

		assert.Contains(t, got, "Visual Analysis (Real-time): Revenue rose to {{1.2M}}\n")
		assert.Contains(t, got, "Visual Analysis (Stored): Pie chart\n")
		assert.Equal(t, []string{"http://minio:9000/images/chart.png", "http://minio:9000/images/missing.png"}, vision.calls)
	})

	t.Run("Model failure falls back", func(t *testing.T) {
		vision := &fakeVision{outcomes: map[string]VisionOutcome{
			"http://minio:9000/images/chart.png":   {Status: VisionModelFailed, Err: errors.New("rate limited")},
			"http://minio:9000/images/missing.png": {Status: VisionEmpty},
		}}
		got := NewContextFormatter(vision, true).Format(ctx, r, "q", true, LanguageIndonesian)
		assert.Contains(t, got, "Visual Analysis (Stored): Bar chart of revenue\n")
		assert.Contains(t, got, "Visual Analysis (Stored): Pie chart\n")
		assert.NotContains(t, got, "Real-time")
	})

	t.Run("Image without URL uses stored description", func(t *testing.T) {
		noURL := model.NewRetrievalResult()
		noURL.Images = append(noURL.Images, imageItem("", "Logo", 1))
		got := NewContextFormatter(panickingVision{}, true).Format(ctx, noURL, "q", true, LanguageEnglish)
		assert.Contains(t, got, "Visual Analysis: Logo\n")
		assert.Contains(t, got, "URL: \n")
	})
}

func TestEscapeBraces(t *testing.T) {
	assert.Equal(t, "", EscapeBraces(""))
	assert.Equal(t, "no braces", EscapeBraces("no braces"))
	assert.Equal(t, `{{"a": {{"b": 1}}}}`, EscapeBraces(`{"a": {"b": 1}}`))

	r := model.NewRetrievalResult()
	r.Text = append(r.Text, model.NewRetrievedItem(model.ContentText, model.Document{Content: "config = {query}"}, nil))
	got := NewContextFormatter(nil, false).Format(context.Background(), r, "q", false, LanguageEnglish)
	assert.Contains(t, got, "config = {{query}}")
}
