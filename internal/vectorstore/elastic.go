package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"multimodal-rag-go/internal/model"
	"multimodal-rag-go/pkg/es"

	"github.com/elastic/go-elasticsearch/v8"
)

// ElasticCollection 把一个 Elasticsearch 索引作为向量集合，使用 dense_vector kNN 检索。
type ElasticCollection struct {
	client *elasticsearch.Client
	index  string
	dims   int
}

// NewElasticCollection 创建基于指定索引的集合，索引需已通过 es.EnsureIndex 创建。
func NewElasticCollection(client *elasticsearch.Client, index string, dims int) *ElasticCollection {
	return &ElasticCollection{client: client, index: index, dims: dims}
}

func (e *ElasticCollection) Name() string { return e.index }

type esSource struct {
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata"`
	Embedding []float32              `json:"embedding,omitempty"`
}

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string   `json:"_id"`
			Score  float64  `json:"_score"`
			Source esSource `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

const maxNumCandidates = 10000

// buildKNNQuery 构造 kNN 查询，filter 中的每个键转换为 metadata.<key> 的 term 条件。
func buildKNNQuery(vector []float32, k int, filter map[string]interface{}) map[string]interface{} {
	// Elasticsearch 要求 k <= num_candidates <= 10000
	if k > maxNumCandidates {
		k = maxNumCandidates
	}
	numCandidates := k * 10
	if numCandidates < 100 {
		numCandidates = 100
	}
	if numCandidates > maxNumCandidates {
		numCandidates = maxNumCandidates
	}
	knn := map[string]interface{}{
		"field":          "embedding",
		"query_vector":   vector,
		"k":              k,
		"num_candidates": numCandidates,
	}
	if len(filter) > 0 {
		keys := make([]string, 0, len(filter))
		for key := range filter {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		terms := make([]map[string]interface{}, 0, len(keys))
		for _, key := range keys {
			terms = append(terms, map[string]interface{}{
				"term": map[string]interface{}{"metadata." + key: filter[key]},
			})
		}
		knn["filter"] = terms
	}
	return map[string]interface{}{
		"knn":     knn,
		"size":    k,
		"_source": []string{"content", "metadata", "embedding"},
	}
}

// scoreToDistance 把 Elasticsearch cosine 相似度得分 (1+cos)/2 换算回余弦距离 1-cos。
func scoreToDistance(score float64) float64 {
	return 2 * (1 - score)
}

func (e *ElasticCollection) Search(ctx context.Context, vector []float32, k int, filter map[string]interface{}) ([]ScoredDocument, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildKNNQuery(vector, k, filter)); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch returned an error: %s, body: %s", res.Status(), string(body))
	}

	var parsed esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}
	results := make([]ScoredDocument, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		results = append(results, ScoredDocument{
			Document: model.Document{
				ID:        hit.ID,
				Content:   hit.Source.Content,
				Metadata:  hit.Source.Metadata,
				Embedding: hit.Source.Embedding,
			},
			Distance: scoreToDistance(hit.Score),
		})
	}
	return results, nil
}

// Add 通过 Bulk API 写入文档，并立即刷新使其可检索。
func (e *ElasticCollection) Add(ctx context.Context, docs []model.Document) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, d := range docs {
		if len(d.Embedding) != e.dims {
			return fmt.Errorf("document %s has %d dims, index %s expects %d", d.ID, len(d.Embedding), e.index, e.dims)
		}
		action := map[string]interface{}{"index": map[string]interface{}{"_id": d.ID}}
		if err := enc.Encode(action); err != nil {
			return err
		}
		if err := enc.Encode(esSource{Content: d.Content, Metadata: d.Metadata, Embedding: d.Embedding}); err != nil {
			return err
		}
	}

	res, err := e.client.Bulk(
		&buf,
		e.client.Bulk.WithContext(ctx),
		e.client.Bulk.WithIndex(e.index),
		e.client.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch bulk failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch bulk returned an error: %s", res.String())
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID string `json:"_id"`
			Error *struct {
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if bulkResp.Errors {
		for _, item := range bulkResp.Items {
			for _, r := range item {
				if r.Error != nil {
					return fmt.Errorf("failed to index document %s: %s", r.ID, r.Error.Reason)
				}
			}
		}
		return fmt.Errorf("elasticsearch bulk reported errors")
	}
	return nil
}

func (e *ElasticCollection) Count(ctx context.Context) (int, error) {
	res, err := e.client.Count(
		e.client.Count.WithContext(ctx),
		e.client.Count.WithIndex(e.index),
	)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("elasticsearch count returned an error: %s", res.String())
	}
	var countResp struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&countResp); err != nil {
		return 0, err
	}
	return countResp.Count, nil
}

// Reset 删除并按相同 mapping 重建索引。
func (e *ElasticCollection) Reset(ctx context.Context) error {
	if err := es.DeleteIndex(e.client, e.index); err != nil {
		return err
	}
	return es.EnsureIndex(e.client, e.index, e.dims)
}
