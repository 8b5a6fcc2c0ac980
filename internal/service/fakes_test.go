package service

import (
	"context"
	"errors"
	"sync"

	"multimodal-rag-go/internal/model"
	"multimodal-rag-go/internal/vectorstore"
	"multimodal-rag-go/pkg/llm"
)

// fakeStore 按类别返回预置的带距离结果，并记录每次调用的参数。
type fakeStore struct {
	mu       sync.Mutex
	results  map[model.ContentType][]vectorstore.ScoredDocument
	errs     map[model.ContentType]error
	embedErr error

	embedCalls int
	searchK    map[model.ContentType]int
	filters    map[model.ContentType]map[string]interface{}
	mmrCalls   map[model.ContentType][2]float64 // fetchK, lambda
	added      map[model.ContentType][]model.Document
	addErr     map[model.ContentType]error
	resetCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		results:  map[model.ContentType][]vectorstore.ScoredDocument{},
		errs:     map[model.ContentType]error{},
		searchK:  map[model.ContentType]int{},
		filters:  map[model.ContentType]map[string]interface{}{},
		mmrCalls: map[model.ContentType][2]float64{},
		added:    map[model.ContentType][]model.Document{},
		addErr:   map[model.ContentType]error{},
	}
}

func (f *fakeStore) with(t model.ContentType, docs ...vectorstore.ScoredDocument) *fakeStore {
	f.results[t] = append(f.results[t], docs...)
	return f
}

func scored(id, content string, distance float64, md map[string]interface{}) vectorstore.ScoredDocument {
	if md == nil {
		md = map[string]interface{}{}
	}
	return vectorstore.ScoredDocument{
		Document: model.Document{ID: id, Content: content, Metadata: md},
		Distance: distance,
	}
}

func (f *fakeStore) Embed(ctx context.Context, query string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCalls++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeStore) SimilaritySearch(ctx context.Context, t model.ContentType, query string, k int, filter map[string]interface{}) ([]model.Document, error) {
	vec, err := f.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	sd, err := f.SearchByVector(ctx, t, vec, k, filter)
	if err != nil {
		return nil, err
	}
	docs := make([]model.Document, len(sd))
	for i, d := range sd {
		docs[i] = d.Document
	}
	return docs, nil
}

func (f *fakeStore) SimilaritySearchWithScore(ctx context.Context, t model.ContentType, query string, k int) ([]vectorstore.ScoredDocument, error) {
	vec, err := f.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return f.SearchByVector(ctx, t, vec, k, nil)
}

func (f *fakeStore) MaxMarginalRelevanceSearch(ctx context.Context, t model.ContentType, query string, k, fetchK int, lambdaMult float64) ([]model.Document, error) {
	vec, err := f.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return f.MaxMarginalRelevanceByVector(ctx, t, vec, k, fetchK, lambdaMult)
}

func (f *fakeStore) SearchByVector(ctx context.Context, t model.ContentType, vector []float32, k int, filter map[string]interface{}) ([]vectorstore.ScoredDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchK[t] = k
	f.filters[t] = filter
	if err := f.errs[t]; err != nil {
		return nil, err
	}
	docs := f.results[t]
	if len(docs) > k {
		docs = docs[:k]
	}
	return append([]vectorstore.ScoredDocument(nil), docs...), nil
}

func (f *fakeStore) MaxMarginalRelevanceByVector(ctx context.Context, t model.ContentType, vector []float32, k, fetchK int, lambdaMult float64) ([]model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mmrCalls[t] = [2]float64{float64(fetchK), lambdaMult}
	if err := f.errs[t]; err != nil {
		return nil, err
	}
	var docs []model.Document
	for _, d := range f.results[t] {
		if len(docs) == k {
			break
		}
		docs = append(docs, d.Document)
	}
	return docs, nil
}

func (f *fakeStore) AddDocuments(ctx context.Context, t model.ContentType, docs []model.Document) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.addErr[t]; err != nil {
		return nil, err
	}
	ids := make([]string, len(docs))
	for i := range docs {
		ids[i] = string(t) + "-" + string(rune('a'+i))
	}
	f.added[t] = append(f.added[t], docs...)
	return ids, nil
}

func (f *fakeStore) Stats(ctx context.Context) model.CollectionStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := model.CollectionStats{
		Text:   len(f.added[model.ContentText]),
		Images: len(f.added[model.ContentImage]),
		Tables: len(f.added[model.ContentTable]),
	}
	s.Total = s.Text + s.Images + s.Tables
	return s
}

func (f *fakeStore) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetCalls++
	f.added = map[model.ContentType][]model.Document{}
	return nil
}

func (f *fakeStore) CollectionName(t model.ContentType) string {
	return "documents_" + string(t)
}

// fakeLLM 记录收到的消息，按配置返回回答或错误。
type fakeLLM struct {
	mu       sync.Mutex
	model    string
	reply    string
	chunks   []string
	err      error
	calls    int
	messages [][]llm.Message
}

func (f *fakeLLM) Chat(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.messages = append(f.messages, messages)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) StreamChatMessages(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams, writer llm.MessageWriter) error {
	f.mu.Lock()
	f.calls++
	f.messages = append(f.messages, messages)
	chunks, err := f.chunks, f.err
	f.mu.Unlock()
	if err != nil {
		return err
	}
	for _, c := range chunks {
		if werr := writer.WriteMessage(1, []byte(c)); werr != nil {
			return werr
		}
	}
	return nil
}

func (f *fakeLLM) Model() string {
	if f.model == "" {
		return "gpt-4o-mini"
	}
	return f.model
}

func (f *fakeLLM) lastUserPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return ""
	}
	msgs := f.messages[len(f.messages)-1]
	return msgs[len(msgs)-1].Content
}

// fakeVision 按图片 URL 返回预置的分析结果。
type fakeVision struct {
	mu       sync.Mutex
	outcomes map[string]VisionOutcome
	calls    []string
}

func (f *fakeVision) Analyze(ctx context.Context, imageURL, query string, lang Language) VisionOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, imageURL)
	if o, ok := f.outcomes[imageURL]; ok {
		return o
	}
	return VisionOutcome{Status: VisionFetchFailed, Err: errors.New("not found")}
}

func (f *fakeVision) Model() string { return "gpt-4o" }

// panickingVision 用于断言 vision 关闭时不会发起任何分析。
type panickingVision struct{}

func (panickingVision) Analyze(ctx context.Context, imageURL, query string, lang Language) VisionOutcome {
	panic("vision must not be called")
}

func (panickingVision) Model() string { return "gpt-4o" }

// recordingWriter 收集写入 websocket 的所有报文。
type recordingWriter struct {
	mu       sync.Mutex
	messages [][]byte
}

func (w *recordingWriter) WriteMessage(messageType int, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, append([]byte(nil), data...))
	return nil
}

func ptr[T any](v T) *T { return &v }

// q3Result 是一份包含一段文本与一张 HTML 表格的检索结果。
func q3Result() model.RetrievalResult {
	textDist, tableDist := 0.12, 0.30
	r := model.NewRetrievalResult()
	r.Text = append(r.Text, model.NewRetrievedItem(model.ContentText, model.Document{
		ID:      "t1",
		Content: "Revenue in Q3 grew 15% year over year.",
		Metadata: map[string]interface{}{
			"chunk_page_number": 4,
			"source_pdf_url":    "http://minio:9000/documents/report.pdf",
			"source_pdf_path":   "documents/report.pdf",
		},
	}, &textDist))
	r.Tables = append(r.Tables, model.NewRetrievedItem(model.ContentTable, model.Document{
		ID:      "tb1",
		Content: "<table><tr><td>Q3</td><td>1.2M</td></tr></table>",
		Metadata: map[string]interface{}{
			"table_page_number": 5,
			"has_html":          true,
			"source_pdf_url":    "http://minio:9000/documents/report.pdf",
			"source_pdf_path":   "documents/report.pdf",
		},
	}, &tableDist))
	return r
}

func imageItem(url, description string, page int) model.RetrievedItem {
	return model.NewRetrievedItem(model.ContentImage, model.Document{
		Content: description,
		Metadata: map[string]interface{}{
			"image_url":       url,
			"img_page_number": page,
		},
	}, nil)
}
