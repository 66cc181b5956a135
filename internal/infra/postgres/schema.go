package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// ChunkTable はチャンクとベクトルを保存するテーブル
	ChunkTable = "doc_chunks"
	// JobTable はクエリジョブのレコードを保存するテーブル
	JobTable = "query_jobs"
)

// SchemaOptions はスキーマ作成時のオプション
type SchemaOptions struct {
	Dimension int  // embedding 列の次元数
	HNSWIndex bool // true の場合 embedding に HNSW インデックスを作成する
}

// EnsureSchema は pgvector 拡張と必要なテーブルを作成する（存在する場合は何もしない）
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, opts SchemaOptions) error {
	if opts.Dimension <= 0 {
		return fmt.Errorf("invalid embedding dimension: %d", opts.Dimension)
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	statements := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			document TEXT NOT NULL,
			metadata JSONB,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, ChunkTable, opts.Dimension),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			query_id TEXT PRIMARY KEY,
			query_text TEXT NOT NULL,
			status TEXT NOT NULL,
			response_text TEXT,
			sources TEXT[],
			error TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`, JobTable),
	}
	if opts.HNSWIndex {
		statements = append(statements, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)",
			ChunkTable, ChunkTable,
		))
	}

	for _, stmt := range statements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
