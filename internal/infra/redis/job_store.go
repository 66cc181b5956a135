package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/mo"

	"github.com/jinford/doc-rag/internal/core/job"
)

const (
	// DefaultKeyPrefix はキーの既定プレフィックス
	DefaultKeyPrefix = "docrag"

	maxWatchRetries = 5
)

// JobStore は Redis にジョブレコードを JSON で保存するストア
//
// Put は WATCH/MULTI で現在の状態を確認してから書き込むため、
// 終端状態のレコードが並行する書き込みで上書きされることはない。
type JobStore struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// JobStoreOption は JobStore のオプション設定
type JobStoreOption func(*JobStore)

// WithJobKeyPrefix はキーのプレフィックスを設定する
func WithJobKeyPrefix(prefix string) JobStoreOption {
	return func(s *JobStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithJobTTL はレコードの有効期限を設定する（0 は無期限）
func WithJobTTL(ttl time.Duration) JobStoreOption {
	return func(s *JobStore) {
		s.ttl = ttl
	}
}

// NewJobStore は新しい JobStore を作成する
func NewJobStore(client goredis.UniversalClient, opts ...JobStoreOption) *JobStore {
	s := &JobStore{client: client, prefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *JobStore) key(queryID string) string {
	return s.prefix + ":job:" + queryID
}

// Get は query_id でジョブを取得する
func (s *JobStore) Get(ctx context.Context, queryID string) (mo.Option[*job.Job], error) {
	data, err := s.client.Get(ctx, s.key(queryID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return mo.None[*job.Job](), nil
		}
		return mo.None[*job.Job](), fmt.Errorf("failed to get job: %w", err)
	}
	j, err := decodeJob(data)
	if err != nil {
		return mo.None[*job.Job](), err
	}
	return mo.Some(j), nil
}

// Put はジョブを保存する。終端状態のレコードは上書きせず ErrTerminalState を返す
func (s *JobStore) Put(ctx context.Context, j *job.Job) error {
	if j == nil || j.QueryID == "" {
		return errors.New("job query_id is required")
	}
	record := *j
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = record.UpdatedAt
	}
	data, err := json.Marshal(&record)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	key := s.key(j.QueryID)
	txf := func(tx *goredis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			stored, decodeErr := decodeJob(current)
			if decodeErr != nil {
				return decodeErr
			}
			if stored.Status.IsTerminal() {
				return job.ErrTerminalState
			}
		case errors.Is(err, goredis.Nil):
		default:
			return fmt.Errorf("failed to read job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}

	for range maxWatchRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			// 監視中のキーが変更されたので読み直す
			continue
		}
		if err != nil && !errors.Is(err, job.ErrTerminalState) {
			return fmt.Errorf("failed to put job: %w", err)
		}
		return err
	}
	return fmt.Errorf("failed to put job: %w", goredis.TxFailedErr)
}

func decodeJob(data []byte) (*job.Job, error) {
	var j job.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	j.NormalizeSources()
	return &j, nil
}

// インターフェース実装の確認
var _ job.Store = (*JobStore)(nil)
