package vectorstore

import (
	"context"
	"fmt"

	"multimodal-rag-go/internal/config"
	"multimodal-rag-go/pkg/embedding"
	"multimodal-rag-go/pkg/es"
	"multimodal-rag-go/pkg/log"
)

// Open 按 vectorstore.backend 构造三个集合并返回 Store，closeFn 用于释放后端连接。
func Open(ctx context.Context, cfg *config.Config, embedder embedding.Client) (Store, func(), error) {
	names := cfg.Collections
	dims := cfg.VectorStore.Dimensions
	noop := func() {}

	switch cfg.VectorStore.Backend {
	case "elasticsearch":
		client, err := es.InitES(cfg.Elasticsearch, dims, names.Text, names.Image, names.Table)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to init elasticsearch: %w", err)
		}
		log.Infof("[VectorStore] 使用 Elasticsearch 后端, 索引: %s, %s, %s", names.Text, names.Image, names.Table)
		return NewStore(embedder,
			NewElasticCollection(client, names.Text, dims),
			NewElasticCollection(client, names.Image, dims),
			NewElasticCollection(client, names.Table, dims),
		), noop, nil

	case "pgvector":
		pool, err := NewPgPool(ctx, cfg.VectorStore.PostgresDSN)
		if err != nil {
			return nil, noop, err
		}
		collections := make([]Collection, 0, 3)
		for _, name := range []string{names.Text, names.Image, names.Table} {
			c, err := NewPgvectorCollection(ctx, pool, name, dims)
			if err != nil {
				pool.Close()
				return nil, noop, err
			}
			collections = append(collections, c)
		}
		log.Infof("[VectorStore] 使用 pgvector 后端, 表: %s, %s, %s", names.Text, names.Image, names.Table)
		return NewStore(embedder, collections[0], collections[1], collections[2]), pool.Close, nil

	case "memory":
		log.Warnf("[VectorStore] 使用内存后端, 数据不会持久化")
		return NewStore(embedder,
			NewMemoryCollection(names.Text),
			NewMemoryCollection(names.Image),
			NewMemoryCollection(names.Table),
		), noop, nil
	}
	return nil, noop, fmt.Errorf("unknown vector store backend %q", cfg.VectorStore.Backend)
}
