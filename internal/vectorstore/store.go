package vectorstore

import (
	"context"
	"fmt"

	"multimodal-rag-go/internal/model"
	"multimodal-rag-go/pkg/embedding"
	"multimodal-rag-go/pkg/log"

	"github.com/google/uuid"
)

const embedBatchSize = 64

// Store 定义了对三个内容集合的统一访问。
// 以 query 为参数的方法会先调用 Embedding 服务；ByVector 版本供已持有查询向量的调用方复用，
// 避免同一请求重复向量化。
type Store interface {
	Embed(ctx context.Context, query string) ([]float32, error)

	SimilaritySearch(ctx context.Context, t model.ContentType, query string, k int, filter map[string]interface{}) ([]model.Document, error)
	SimilaritySearchWithScore(ctx context.Context, t model.ContentType, query string, k int) ([]ScoredDocument, error)
	MaxMarginalRelevanceSearch(ctx context.Context, t model.ContentType, query string, k, fetchK int, lambdaMult float64) ([]model.Document, error)

	SearchByVector(ctx context.Context, t model.ContentType, vector []float32, k int, filter map[string]interface{}) ([]ScoredDocument, error)
	MaxMarginalRelevanceByVector(ctx context.Context, t model.ContentType, vector []float32, k, fetchK int, lambdaMult float64) ([]model.Document, error)

	AddDocuments(ctx context.Context, t model.ContentType, docs []model.Document) ([]string, error)
	Stats(ctx context.Context) model.CollectionStats
	Reset(ctx context.Context) error
	CollectionName(t model.ContentType) string
}

type store struct {
	embedder    embedding.Client
	collections map[model.ContentType]Collection
}

// NewStore 用一个 Embedding 客户端和三个集合构造 Store。
func NewStore(embedder embedding.Client, text, image, table Collection) Store {
	return &store{
		embedder: embedder,
		collections: map[model.ContentType]Collection{
			model.ContentText:  text,
			model.ContentImage: image,
			model.ContentTable: table,
		},
	}
}

func (s *store) collection(t model.ContentType) (Collection, error) {
	c, ok := s.collections[t]
	if !ok || c == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownContentType, t)
	}
	return c, nil
}

func (s *store) CollectionName(t model.ContentType) string {
	c, err := s.collection(t)
	if err != nil {
		return ""
	}
	return c.Name()
}

func (s *store) Embed(ctx context.Context, query string) ([]float32, error) {
	vec, err := s.embedder.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return vec, nil
}

func (s *store) SimilaritySearch(ctx context.Context, t model.ContentType, query string, k int, filter map[string]interface{}) ([]model.Document, error) {
	vec, err := s.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	scored, err := s.SearchByVector(ctx, t, vec, k, filter)
	if err != nil {
		return nil, err
	}
	return documentsOf(scored), nil
}

func (s *store) SimilaritySearchWithScore(ctx context.Context, t model.ContentType, query string, k int) ([]ScoredDocument, error) {
	vec, err := s.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.SearchByVector(ctx, t, vec, k, nil)
}

func (s *store) MaxMarginalRelevanceSearch(ctx context.Context, t model.ContentType, query string, k, fetchK int, lambdaMult float64) ([]model.Document, error) {
	vec, err := s.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.MaxMarginalRelevanceByVector(ctx, t, vec, k, fetchK, lambdaMult)
}

func (s *store) SearchByVector(ctx context.Context, t model.ContentType, vector []float32, k int, filter map[string]interface{}) ([]ScoredDocument, error) {
	c, err := s.collection(t)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return []ScoredDocument{}, nil
	}
	results, err := c.Search(ctx, vector, k, filter)
	if err != nil {
		return nil, collectionError(c.Name(), "search", err)
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// MaxMarginalRelevanceByVector 先取 fetchK 个最近候选，再贪心选出 k 个兼顾相关性与多样性的结果。
// lambdaMult=1 时退化为按相关性排序，lambdaMult=0 时多样性最大。
func (s *store) MaxMarginalRelevanceByVector(ctx context.Context, t model.ContentType, vector []float32, k, fetchK int, lambdaMult float64) ([]model.Document, error) {
	if fetchK < k {
		fetchK = k
	}
	candidates, err := s.SearchByVector(ctx, t, vector, fetchK, nil)
	if err != nil {
		return nil, err
	}
	embeddings := make([][]float32, len(candidates))
	for i, c := range candidates {
		embeddings[i] = c.Document.Embedding
	}
	picked := selectMMR(vector, embeddings, k, lambdaMult)
	docs := make([]model.Document, 0, len(picked))
	for _, idx := range picked {
		docs = append(docs, candidates[idx].Document)
	}
	return docs, nil
}

// AddDocuments 为缺少向量的文档批量生成 Embedding，缺少 ID 的文档分配 UUID，然后写入集合。
func (s *store) AddDocuments(ctx context.Context, t model.ContentType, docs []model.Document) ([]string, error) {
	c, err := s.collection(t)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return []string{}, nil
	}

	prepared := make([]model.Document, len(docs))
	copy(prepared, docs)
	var pending []int
	for i := range prepared {
		if prepared[i].ID == "" {
			prepared[i].ID = uuid.NewString()
		}
		if len(prepared[i].Embedding) == 0 {
			pending = append(pending, i)
		}
	}

	for start := 0; start < len(pending); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		texts := make([]string, 0, end-start)
		for _, idx := range pending[start:end] {
			texts = append(texts, prepared[idx].Content)
		}
		vectors, err := s.embedder.CreateEmbeddings(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed %s documents: %w", t, err)
		}
		for j, idx := range pending[start:end] {
			prepared[idx].Embedding = vectors[j]
		}
	}

	if err := c.Add(ctx, prepared); err != nil {
		return nil, collectionError(c.Name(), "add", err)
	}
	ids := make([]string, len(prepared))
	for i, d := range prepared {
		ids[i] = d.ID
	}
	log.Infof("[VectorStore] 已写入 %d 条 %s 文档到集合 %s", len(ids), t, c.Name())
	return ids, nil
}

// Stats 统计每个集合的文档数，单个集合计数失败时按 0 处理。
func (s *store) Stats(ctx context.Context) model.CollectionStats {
	count := func(t model.ContentType) int {
		c, err := s.collection(t)
		if err != nil {
			return 0
		}
		n, err := c.Count(ctx)
		if err != nil {
			log.Warnf("[VectorStore] 统计集合 %s 失败: %v", c.Name(), err)
			return 0
		}
		return n
	}
	stats := model.CollectionStats{
		Text:   count(model.ContentText),
		Images: count(model.ContentImage),
		Tables: count(model.ContentTable),
	}
	stats.Total = stats.Text + stats.Images + stats.Tables
	return stats
}

// Reset 清空三个集合。
func (s *store) Reset(ctx context.Context) error {
	for _, t := range model.ContentTypes {
		c, err := s.collection(t)
		if err != nil {
			return err
		}
		if err := c.Reset(ctx); err != nil {
			return collectionError(c.Name(), "reset", err)
		}
		log.Infof("[VectorStore] 集合 %s 已重置", c.Name())
	}
	return nil
}

func documentsOf(scored []ScoredDocument) []model.Document {
	docs := make([]model.Document, len(scored))
	for i, s := range scored {
		docs[i] = s.Document
	}
	return docs
}
