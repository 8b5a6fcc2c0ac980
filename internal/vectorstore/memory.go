package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"multimodal-rag-go/internal/model"
)

// MemoryCollection 是进程内的暴力余弦检索集合，用于开发与测试。
type MemoryCollection struct {
	name string
	mu   sync.RWMutex
	docs []model.Document
}

// NewMemoryCollection 创建一个空的内存集合。
func NewMemoryCollection(name string) *MemoryCollection {
	return &MemoryCollection{name: name}
}

func (m *MemoryCollection) Name() string { return m.name }

func (m *MemoryCollection) Search(ctx context.Context, vector []float32, k int, filter map[string]interface{}) ([]ScoredDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]ScoredDocument, 0, len(m.docs))
	for _, d := range m.docs {
		if !matchesFilter(d.Metadata, filter) {
			continue
		}
		results = append(results, ScoredDocument{
			Document: d,
			Distance: 1 - CosineSimilarity(vector, d.Embedding),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Add 以 ID 为键写入文档，已存在的 ID 会被覆盖。
func (m *MemoryCollection) Add(ctx context.Context, docs []model.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	index := make(map[string]int, len(m.docs))
	for i, d := range m.docs {
		index[d.ID] = i
	}
	for _, d := range docs {
		if len(d.Embedding) == 0 {
			return fmt.Errorf("document %s has no embedding", d.ID)
		}
		if i, ok := index[d.ID]; ok {
			m.docs[i] = d
			continue
		}
		index[d.ID] = len(m.docs)
		m.docs = append(m.docs, d)
	}
	return nil
}

func (m *MemoryCollection) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs), nil
}

func (m *MemoryCollection) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = nil
	return nil
}

func matchesFilter(md map[string]interface{}, filter map[string]interface{}) bool {
	for k, want := range filter {
		got, ok := md[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
