package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/doc-rag/internal/core/ingestion"
	"github.com/jinford/doc-rag/internal/core/search"
	"github.com/jinford/doc-rag/internal/platform/database"
)

// VectorStore は pgvector を使ったベクトルインデックス
//
// 書き込みは Add の時点でコミットされるため Persist は何もしない。
type VectorStore struct {
	pool      *pgxpool.Pool
	dimension int
}

// NewVectorStore は新しい VectorStore を作成する
// テーブルは EnsureSchema で作成済みであること
func NewVectorStore(pool *pgxpool.Pool, dimension int) *VectorStore {
	return &VectorStore{pool: pool, dimension: dimension}
}

// ExistingIDs は保存済みチャンクのIDのみを取得する
func (s *VectorStore) ExistingIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, "SELECT id FROM "+ChunkTable)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan chunk ids: %w", err)
	}

	result := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		result[id] = struct{}{}
	}
	return result, nil
}

// Add はエントリをIDキーでupsertする（1トランザクション）
func (s *VectorStore) Add(ctx context.Context, entries []ingestion.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	stmt := fmt.Sprintf(`INSERT INTO %s (id, embedding, document, metadata, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    embedding = excluded.embedding,
    document = excluded.document,
    metadata = excluded.metadata,
    updated_at = excluded.updated_at`, ChunkTable)

	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for _, e := range entries {
		if len(e.Embedding) != s.dimension {
			return fmt.Errorf("chunk %q dimension mismatch (got %d want %d)", e.ID, len(e.Embedding), s.dimension)
		}
		metadata, err := MetadataToJSONB(e.Metadata)
		if err != nil {
			return fmt.Errorf("chunk %q: %w", e.ID, err)
		}
		batch.Queue(stmt, e.ID, pgvector.NewVector(e.Embedding), e.Text, metadata, now)
	}

	_, err := database.Transact(ctx, s.pool, func(tx pgx.Tx) (struct{}, error) {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return struct{}{}, fmt.Errorf("failed to upsert chunks: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}

// Persist は何もしない（Add の時点でコミット済み）
func (s *VectorStore) Persist(context.Context) error {
	return nil
}

// Reset はすべてのチャンクを削除する
func (s *VectorStore) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "TRUNCATE "+ChunkTable); err != nil {
		return fmt.Errorf("failed to truncate chunks: %w", err)
	}
	return nil
}

// SimilaritySearch はコサイン距離でチャンクを検索する
// MMR の場合は FetchK 件の候補をベクトル付きで取得してから選択する
func (s *VectorStore) SimilaritySearch(ctx context.Context, vector []float32, opts search.SearchOptions) ([]*search.Match, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query dimension mismatch (got %d want %d)", len(vector), s.dimension)
	}

	k := opts.K
	if k <= 0 {
		k = search.DefaultK
	}
	limit := k
	mmr := opts.Strategy == search.StrategyMMR
	if mmr {
		limit = max(opts.FetchK, k)
	}

	query := fmt.Sprintf(`SELECT id, document, metadata, embedding, 1 - (embedding <=> $1) AS score
FROM %s
ORDER BY embedding <=> $1 ASC, id ASC
LIMIT $2`, ChunkTable)

	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	candidates := make([]search.Candidate, 0, limit)
	for rows.Next() {
		var (
			id          string
			document    string
			metadataRaw []byte
			embedding   pgvector.Vector
			score       float64
		)
		if err := rows.Scan(&id, &document, &metadataRaw, &embedding, &score); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		metadata, err := JSONBToMetadata(metadataRaw)
		if err != nil {
			return nil, fmt.Errorf("chunk %q: %w", id, err)
		}
		candidates = append(candidates, search.Candidate{
			Match: &search.Match{
				ID:       id,
				Text:     document,
				Metadata: metadata,
				Score:    score,
			},
			Embedding: embedding.Slice(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}

	if mmr {
		return search.SelectMMR(vector, candidates, k, opts.Lambda), nil
	}

	matches := make([]*search.Match, len(candidates))
	for i, c := range candidates {
		matches[i] = c.Match
	}
	return matches, nil
}

// インターフェース実装の確認
var (
	_ ingestion.Index = (*VectorStore)(nil)
	_ search.Index    = (*VectorStore)(nil)
)
