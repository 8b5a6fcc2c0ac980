package pipeline

import (
	"context"
	"errors"
	"testing"

	"multimodal-rag-go/internal/config"
	"multimodal-rag-go/internal/model"
	"multimodal-rag-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIngest struct {
	stored []model.ExtractionResult
	err    error
}

func (f *fakeIngest) Store(ctx context.Context, extraction model.ExtractionResult) (*model.StoreSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.stored = append(f.stored, extraction)
	return &model.StoreSummary{TextIDs: []string{"1"}}, nil
}

func (f *fakeIngest) Reset(ctx context.Context) error { return nil }

func TestProcessorProcess(t *testing.T) {
	ctx := context.Background()

	t.Run("Inline extraction", func(t *testing.T) {
		ingest := &fakeIngest{}
		p := NewProcessor(ingest, config.MinIOConfig{})
		err := p.Process(ctx, tasks.IngestionTask{
			TaskID:     "abc",
			Source:     "report.pdf",
			Extraction: &model.ExtractionResult{TextChunks: []model.TextChunk{{Content: "hello"}}},
		})
		require.NoError(t, err)
		require.Len(t, ingest.stored, 1)
		assert.Equal(t, "report.pdf", ingest.stored[0].Metadata.Source)
	})

	t.Run("Source in extraction wins", func(t *testing.T) {
		ingest := &fakeIngest{}
		err := NewProcessor(ingest, config.MinIOConfig{}).Process(ctx, tasks.IngestionTask{
			Source:     "task.pdf",
			Extraction: &model.ExtractionResult{Metadata: model.ExtractionMetadata{Source: "parsed.pdf"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "parsed.pdf", ingest.stored[0].Metadata.Source)
	})

	t.Run("Empty task", func(t *testing.T) {
		err := NewProcessor(&fakeIngest{}, config.MinIOConfig{}).Process(ctx, tasks.IngestionTask{TaskID: "x"})
		assert.ErrorIs(t, err, ErrEmptyTask)
	})

	t.Run("Object key without storage", func(t *testing.T) {
		err := NewProcessor(&fakeIngest{}, config.MinIOConfig{}).Process(ctx, tasks.IngestionTask{ObjectKey: "extractions/x.json"})
		assert.Error(t, err)
	})

	t.Run("Store failure", func(t *testing.T) {
		ingest := &fakeIngest{err: errors.New("index missing")}
		err := NewProcessor(ingest, config.MinIOConfig{}).Process(ctx, tasks.IngestionTask{Extraction: &model.ExtractionResult{}})
		assert.ErrorContains(t, err, "index missing")
	})
}
