package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"multimodal-rag-go/internal/config"
	"multimodal-rag-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testGenCfg = config.LLMGenerationConfig{Temperature: 0.3, MaxTokens: 1024}

func TestGenerateAnswer(t *testing.T) {
	ctx := context.Background()

	t.Run("Text cited before table", func(t *testing.T) {
		client := &fakeLLM{reply: "Revenue grew 15% [TEXT-1], reaching 1.2M [TABLE-1]."}
		gen := NewGenerationService(client, nil, false, testGenCfg)

		answer, err := gen.GenerateAnswer(ctx, "What was Q3 revenue?", q3Result(), GenerateOptions{
			Mode:           ModeCitations,
			Language:       LanguageEnglish,
			IncludeSources: true,
		})
		require.NoError(t, err)
		assert.True(t, answer.HasContext)
		assert.Equal(t, model.SourcesCount{Text: 1, Images: 0, Tables: 1}, answer.SourcesCount)
		assert.Equal(t, "gpt-4o-mini", answer.Model)
		assert.Empty(t, answer.VisionModel)

		prompt := client.lastUserPrompt()
		textAt := strings.Index(prompt, "[TEXT-1]")
		tableAt := strings.Index(prompt, "[TABLE-1]")
		require.NotEqual(t, -1, textAt)
		require.NotEqual(t, -1, tableAt)
		assert.Less(t, textAt, tableAt)
		assert.True(t, strings.HasSuffix(prompt, "Question: What was Q3 revenue?\n\nAnswer with inline citations:"))

		require.Len(t, answer.Sources, 2)
		assert.Equal(t, "TEXT-1", answer.Sources[0].ID)
		assert.Equal(t, "4", answer.Sources[0].Page)
		assert.Equal(t, "TABLE-1", answer.Sources[1].ID)
		require.NotNil(t, answer.Sources[1].HasHTML)
		assert.True(t, *answer.Sources[1].HasHTML)
	})

	t.Run("System prompt follows mode and language", func(t *testing.T) {
		client := &fakeLLM{reply: "ok"}
		gen := NewGenerationService(client, nil, false, testGenCfg)
		_, err := gen.GenerateAnswer(ctx, "q", q3Result(), GenerateOptions{Mode: ModeStructured, Language: LanguageIndonesian})
		require.NoError(t, err)
		require.Len(t, client.messages, 1)
		assert.Equal(t, "system", client.messages[0][0].Role)
		assert.Contains(t, client.messages[0][0].Content, "RINGKASAN EKSEKUTIF")
		assert.True(t, strings.HasSuffix(client.messages[0][1].Content, "Jawaban terstruktur:"))
	})

	t.Run("Empty context skips the model", func(t *testing.T) {
		client := &fakeLLM{reply: "should not be used"}
		gen := NewGenerationService(client, nil, false, testGenCfg)
		for mode, msg := range map[Mode]string{
			ModeSimple:     "Sorry, I could not find relevant information to answer your question.",
			ModeCitations:  "Sorry, I could not find relevant information.",
			ModeStructured: "No information found.",
		} {
			answer, err := gen.GenerateAnswer(ctx, "q", model.NewRetrievalResult(), GenerateOptions{Mode: mode, Language: LanguageEnglish, IncludeSources: true})
			require.NoError(t, err)
			assert.False(t, answer.HasContext)
			assert.Equal(t, msg, answer.Answer)
			assert.NotNil(t, answer.Sources)
			assert.Empty(t, answer.Sources)
		}
		assert.Zero(t, client.calls)
	})

	t.Run("Model error embedded in answer", func(t *testing.T) {
		client := &fakeLLM{err: errors.New("LLM API returned status 503")}
		gen := NewGenerationService(client, nil, false, testGenCfg)
		answer, err := gen.GenerateAnswer(ctx, "q", q3Result(), GenerateOptions{Mode: ModeSimple, Language: LanguageIndonesian})
		require.NoError(t, err)
		assert.True(t, answer.HasContext)
		assert.Contains(t, answer.Answer, "Maaf, terjadi error saat generate jawaban")
		assert.Contains(t, answer.Answer, "503")
		assert.Equal(t, "LLM API returned status 503", answer.Error)
	})

	t.Run("Unknown mode and language", func(t *testing.T) {
		client := &fakeLLM{}
		gen := NewGenerationService(client, nil, false, testGenCfg)
		_, err := gen.GenerateAnswer(ctx, "q", q3Result(), GenerateOptions{Mode: "poem", Language: LanguageEnglish})
		assert.ErrorIs(t, err, ErrUnknownMode)
		_, err = gen.GenerateAnswer(ctx, "q", q3Result(), GenerateOptions{Mode: ModeSimple, Language: "French"})
		assert.ErrorIs(t, err, ErrUnknownLanguage)
		assert.Zero(t, client.calls)
	})

	t.Run("Query braces escaped", func(t *testing.T) {
		client := &fakeLLM{reply: "ok"}
		gen := NewGenerationService(client, nil, false, testGenCfg)
		_, err := gen.GenerateAnswer(ctx, "what is {context}?", q3Result(), GenerateOptions{Mode: ModeSimple, Language: LanguageEnglish})
		require.NoError(t, err)
		prompt := client.lastUserPrompt()
		assert.Contains(t, prompt, "Question: what is {{context}}?")
		assert.Equal(t, 1, strings.Count(prompt, "=== TEXT CONTENT ==="))
	})

	t.Run("Vision model reported when active", func(t *testing.T) {
		r := q3Result()
		r.Images = append(r.Images, imageItem("http://x/chart.png", "chart", 2))
		vision := &fakeVision{outcomes: map[string]VisionOutcome{
			"http://x/chart.png": {Status: VisionOK, Analysis: "A rising line"},
		}}
		gen := NewGenerationService(&fakeLLM{reply: "ok"}, vision, true, testGenCfg)

		answer, err := gen.GenerateAnswer(ctx, "q", r, GenerateOptions{Mode: ModeSimple, Language: LanguageEnglish, IncludeSources: true})
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o", answer.VisionModel)
		require.Len(t, answer.Sources, 3)
		assert.Equal(t, "IMAGE-1", answer.Sources[1].ID)
		require.NotNil(t, answer.Sources[1].AnalyzedWithVision)
		assert.True(t, *answer.Sources[1].AnalyzedWithVision)

		answer, err = gen.GenerateAnswer(ctx, "q", r, GenerateOptions{Mode: ModeSimple, Language: LanguageEnglish, IncludeSources: true, UseVision: ptr(false)})
		require.NoError(t, err)
		assert.Empty(t, answer.VisionModel)
		assert.False(t, *answer.Sources[1].AnalyzedWithVision)
	})
}

func TestStreamAnswer(t *testing.T) {
	ctx := context.Background()

	t.Run("Chunks forwarded and collected", func(t *testing.T) {
		client := &fakeLLM{chunks: []string{"Revenue ", "grew ", "15%."}}
		gen := NewGenerationService(client, nil, false, testGenCfg)
		w := &recordingWriter{}

		answer, err := gen.StreamAnswer(ctx, "q", q3Result(), GenerateOptions{Mode: ModeSimple, Language: LanguageEnglish}, w)
		require.NoError(t, err)
		assert.Equal(t, "Revenue grew 15%.", answer.Answer)
		assert.Len(t, w.messages, 3)
	})

	t.Run("Stream failure", func(t *testing.T) {
		client := &fakeLLM{err: errors.New("broken pipe")}
		gen := NewGenerationService(client, nil, false, testGenCfg)
		answer, err := gen.StreamAnswer(ctx, "q", q3Result(), GenerateOptions{Mode: ModeSimple, Language: LanguageEnglish}, &recordingWriter{})
		require.NoError(t, err)
		assert.True(t, answer.HasContext)
		assert.Equal(t, "broken pipe", answer.Error)
		assert.Contains(t, answer.Answer, "Sorry, an error occurred while generating the answer: broken pipe")
	})
}

func TestExtractSources(t *testing.T) {
	long := strings.Repeat("é", 250)
	r := model.NewRetrievalResult()
	r.Text = append(r.Text, model.NewRetrievedItem(model.ContentText, model.Document{Content: long}, nil))
	r.Tables = append(r.Tables, model.NewRetrievedItem(model.ContentTable, model.Document{Content: "short"}, nil))

	sources := ExtractSources(r, false)
	require.Len(t, sources, 2)
	assert.Equal(t, strings.Repeat("é", 200)+"...", sources[0].ContentPreview)
	assert.Equal(t, "N/A", sources[0].Page)
	assert.Equal(t, "short...", sources[1].ContentPreview)
	assert.False(t, *sources[1].HasHTML)
}

func TestParseModeAndLanguage(t *testing.T) {
	mode, err := ParseMode("", ModeCitations)
	require.NoError(t, err)
	assert.Equal(t, ModeCitations, mode)
	mode, err = ParseMode(" Structured ", ModeSimple)
	require.NoError(t, err)
	assert.Equal(t, ModeStructured, mode)
	_, err = ParseMode("essay", ModeSimple)
	assert.ErrorIs(t, err, ErrUnknownMode)

	lang, err := ParseLanguage("EN", LanguageIndonesian)
	require.NoError(t, err)
	assert.Equal(t, LanguageEnglish, lang)
	lang, err = ParseLanguage("", LanguageIndonesian)
	require.NoError(t, err)
	assert.Equal(t, LanguageIndonesian, lang)
	_, err = ParseLanguage("klingon", LanguageEnglish)
	assert.ErrorIs(t, err, ErrUnknownLanguage)
}
