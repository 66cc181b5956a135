package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/mo"

	"github.com/jinford/doc-rag/internal/core/job"
	"github.com/jinford/doc-rag/internal/platform/database"
)

// JobStore は PostgreSQL に保存するジョブストア
type JobStore struct {
	pool *pgxpool.Pool
}

// NewJobStore は新しい JobStore を作成する
func NewJobStore(pool *pgxpool.Pool) *JobStore {
	return &JobStore{pool: pool}
}

// Get は query_id でジョブを取得する
func (s *JobStore) Get(ctx context.Context, queryID string) (mo.Option[*job.Job], error) {
	query := fmt.Sprintf(`SELECT query_id, query_text, status, response_text, sources, error, created_at, updated_at
FROM %s WHERE query_id = $1`, JobTable)

	var (
		j        job.Job
		status   string
		answer   pgtype.Text
		errorMsg pgtype.Text
	)
	err := s.pool.QueryRow(ctx, query, queryID).Scan(
		&j.QueryID, &j.QueryText, &status, &answer, &j.Sources, &errorMsg, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*job.Job](), nil
		}
		return mo.None[*job.Job](), fmt.Errorf("failed to get job: %w", err)
	}

	j.Status = job.Status(status)
	j.Answer = PgtextToString(answer)
	j.Error = PgtextToString(errorMsg)
	j.NormalizeSources()
	return mo.Some(&j), nil
}

// Put はジョブをupsertする
// 既存レコードを行ロックしてから状態を確認し、終端状態なら ErrTerminalState を返す
func (s *JobStore) Put(ctx context.Context, j *job.Job) error {
	if j == nil || j.QueryID == "" {
		return errors.New("job query_id is required")
	}

	_, err := database.Transact(ctx, s.pool, func(tx pgx.Tx) (struct{}, error) {
		var current string
		err := tx.QueryRow(ctx,
			fmt.Sprintf("SELECT status FROM %s WHERE query_id = $1 FOR UPDATE", JobTable),
			j.QueryID,
		).Scan(&current)
		switch {
		case err == nil:
			if job.Status(current).IsTerminal() {
				return struct{}{}, job.ErrTerminalState
			}
		case errors.Is(err, pgx.ErrNoRows):
		default:
			return struct{}{}, fmt.Errorf("failed to lock job: %w", err)
		}

		updatedAt := j.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now().UTC()
		}
		createdAt := j.CreatedAt
		if createdAt.IsZero() {
			createdAt = updatedAt
		}

		// 同時に INSERT された場合に備え、更新は PENDING の行に限る
		tag, err := tx.Exec(ctx, fmt.Sprintf(`INSERT INTO %s
    (query_id, query_text, status, response_text, sources, error, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (query_id) DO UPDATE SET
    query_text = excluded.query_text,
    status = excluded.status,
    response_text = excluded.response_text,
    sources = excluded.sources,
    error = excluded.error,
    updated_at = excluded.updated_at
WHERE %s.status = $9`, JobTable, JobTable),
			j.QueryID, j.QueryText, string(j.Status),
			StringToNullableText(j.Answer), j.Sources, StringToNullableText(j.Error),
			createdAt, updatedAt, string(job.StatusPending),
		)
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to upsert job: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return struct{}{}, job.ErrTerminalState
		}
		return struct{}{}, nil
	})
	return err
}

// インターフェース実装の確認
var _ job.Store = (*JobStore)(nil)
