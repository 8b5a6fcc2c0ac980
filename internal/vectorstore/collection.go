// Package vectorstore 封装文本、图片、表格三个独立的向量集合，
// 提供相似度检索、带分数检索与 MMR 多样性检索。
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"multimodal-rag-go/internal/model"
)

// ErrUnknownContentType 表示请求了未注册集合的内容类别。
var ErrUnknownContentType = errors.New("unknown content type")

// ScoredDocument 是带距离分数的检索结果，分数越小越相似（余弦距离 1 - cos）。
type ScoredDocument struct {
	Document model.Document
	Distance float64
}

// Collection 是单个向量集合的最小能力集，由 Elasticsearch、pgvector 与内存实现。
type Collection interface {
	Name() string
	// Search 返回按距离升序排列的最多 k 条结果，filter 为元数据精确匹配条件。
	// 返回的 Document 需携带 Embedding，供 MMR 计算使用。
	Search(ctx context.Context, vector []float32, k int, filter map[string]interface{}) ([]ScoredDocument, error)
	Add(ctx context.Context, docs []model.Document) error
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
}

func collectionError(name, op string, err error) error {
	return fmt.Errorf("collection %s %s: %w", name, op, err)
}
