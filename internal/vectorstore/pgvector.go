package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"multimodal-rag-go/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// NewPgPool 创建 pgx 连接池，每个连接建立时确保 vector 扩展存在并注册 vector 类型。
func NewPgPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
			return err
		}
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

// PgvectorCollection 把一张 Postgres 表作为向量集合，使用 <=> 余弦距离排序。
type PgvectorCollection struct {
	pool  *pgxpool.Pool
	table string
	dims  int
}

// NewPgvectorCollection 创建集合并确保表与 HNSW 索引存在。
func NewPgvectorCollection(ctx context.Context, pool *pgxpool.Pool, table string, dims int) (*PgvectorCollection, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid collection name %q", table)
	}
	c := &PgvectorCollection{pool: pool, table: table, dims: dims}
	if err := c.migrate(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *PgvectorCollection) migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding vector(%d) NOT NULL
		)`, c.table, c.dims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, c.table, c.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_metadata_idx ON %s USING gin (metadata)`, c.table, c.table),
	}
	for _, stmt := range stmts {
		if _, err := c.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate collection %s: %w", c.table, err)
		}
	}
	return nil
}

func (c *PgvectorCollection) Name() string { return c.table }

const (
	defaultEfSearch = 40
	maxEfSearch     = 1000
)

// filteredEfSearch 返回带过滤条件时使用的 hnsw.ef_search。
// HNSW 扫描先取 ef_search 个近邻再应用 WHERE 条件，候选集太小会返回不足 k 条；
// 匹配行排在 ef_search 个不匹配行之后时仍可能不足。
func filteredEfSearch(k int) int {
	ef := k * 40
	if ef < 400 {
		ef = 400
	}
	if ef > maxEfSearch {
		ef = maxEfSearch
	}
	return ef
}

// Search 的 filter 以 jsonb 包含运算 @> 实现精确匹配，并在事务内临时调大 hnsw.ef_search。
func (c *PgvectorCollection) Search(ctx context.Context, vector []float32, k int, filter map[string]interface{}) ([]ScoredDocument, error) {
	query := fmt.Sprintf(`SELECT id, content, metadata, embedding, embedding <=> $1 AS distance FROM %s`, c.table)
	args := []interface{}{pgvector.NewVector(vector), k}
	if len(filter) == 0 {
		rows, err := c.pool.Query(ctx, query+` ORDER BY distance ASC LIMIT $2`, args...)
		if err != nil {
			return nil, err
		}
		return scanScored(rows)
	}

	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to encode filter: %w", err)
	}
	query += ` WHERE metadata @> $3::jsonb ORDER BY distance ASC LIMIT $2`
	args = append(args, string(filterJSON))

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, fmt.Sprintf(`SET LOCAL hnsw.ef_search = %d`, filteredEfSearch(k))); err != nil {
		return nil, fmt.Errorf("failed to set hnsw.ef_search: %w", err)
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanScored(rows)
}

func scanScored(rows pgx.Rows) ([]ScoredDocument, error) {
	defer rows.Close()

	var results []ScoredDocument
	for rows.Next() {
		var (
			doc      model.Document
			metadata []byte
			vec      pgvector.Vector
			distance float64
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &metadata, &vec, &distance); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata of %s: %w", doc.ID, err)
		}
		doc.Embedding = vec.Slice()
		results = append(results, ScoredDocument{Document: doc, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Add 在一个批次中 upsert 文档。
func (c *PgvectorCollection) Add(ctx context.Context, docs []model.Document) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (id, content, metadata, embedding) VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding`, c.table)

	batch := &pgx.Batch{}
	for _, d := range docs {
		if len(d.Embedding) != c.dims {
			return fmt.Errorf("document %s has %d dims, collection %s expects %d", d.ID, len(d.Embedding), c.table, c.dims)
		}
		metadata := d.Metadata
		if metadata == nil {
			metadata = map[string]interface{}{}
		}
		metadataJSON, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata of %s: %w", d.ID, err)
		}
		batch.Queue(stmt, d.ID, d.Content, string(metadataJSON), pgvector.NewVector(d.Embedding))
	}
	return c.pool.SendBatch(ctx, batch).Close()
}

func (c *PgvectorCollection) Count(ctx context.Context) (int, error) {
	var n int
	err := c.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, c.table)).Scan(&n)
	return n, err
}

func (c *PgvectorCollection) Reset(ctx context.Context) error {
	_, err := c.pool.Exec(ctx, fmt.Sprintf(`TRUNCATE TABLE %s`, c.table))
	return err
}
