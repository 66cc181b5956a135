package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jinford/doc-rag/internal/core/job"
)

const (
	// DefaultQueueKey はキューの既定キー
	DefaultQueueKey = DefaultKeyPrefix + ":jobs"

	// DefaultBlockTimeout は Receive がメッセージを待つ最大時間
	DefaultBlockTimeout = time.Second
)

// Queue は Redis のリストを使ったジョブキュー
//
// <key>:pending に LPUSH で投入し、受信時に <key>:processing へ LMOVE する。
// Ack で processing から削除し、Nack と Recover で pending に戻す。
// 処理中にワーカーが落ちてもメッセージは processing に残るため、少なくとも1回は配信される。
type Queue struct {
	client       goredis.UniversalClient
	pending      string
	processing   string
	blockTimeout time.Duration
	logger       *slog.Logger
}

// QueueOption は Queue のオプション設定
type QueueOption func(*Queue)

// WithQueueLogger はロガーを設定する
func WithQueueLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithBlockTimeout は Receive の待ち時間を設定する
func WithBlockTimeout(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.blockTimeout = d
		}
	}
}

// NewQueue は新しい Queue を作成する
func NewQueue(client goredis.UniversalClient, key string, opts ...QueueOption) *Queue {
	if key == "" {
		key = DefaultQueueKey
	}
	q := &Queue{
		client:       client,
		pending:      key + ":pending",
		processing:   key + ":processing",
		blockTimeout: DefaultBlockTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue はメッセージを投入する
func (q *Queue) Enqueue(ctx context.Context, msg job.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := q.client.LPush(ctx, q.pending, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}
	return nil
}

// Receive は最大 max 件のメッセージを受け取る
// 最初の1件はブロックして待ち、残りは待たずに取れる分だけ取る
func (q *Queue) Receive(ctx context.Context, max int) ([]job.Delivery, error) {
	if max <= 0 {
		max = 1
	}

	first, err := q.client.BLMove(ctx, q.pending, q.processing, "RIGHT", "LEFT", q.blockTimeout).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return []job.Delivery{}, nil
		}
		return nil, fmt.Errorf("failed to receive message: %w", err)
	}

	deliveries := make([]job.Delivery, 0, max)
	deliveries = append(deliveries, q.delivery(first))
	for len(deliveries) < max {
		raw, err := q.client.LMove(ctx, q.pending, q.processing, "RIGHT", "LEFT").Result()
		if errors.Is(err, goredis.Nil) {
			break
		}
		if err != nil {
			// 受信済みの分は processing に残っているので、そのまま返して処理する
			q.logger.Warn("failed to receive additional message", "error", err)
			break
		}
		deliveries = append(deliveries, q.delivery(raw))
	}
	return deliveries, nil
}

// delivery は生のメッセージを Delivery に変換する
// 壊れたメッセージは空の Message として返し、処理側で失敗扱いにする
func (q *Queue) delivery(raw string) job.Delivery {
	var msg job.Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		q.logger.Warn("malformed queue message", "error", err)
		msg = job.Message{}
	}
	return job.Delivery{Message: msg, Receipt: raw}
}

// Ack は処理済みのメッセージを processing から削除する
func (q *Queue) Ack(ctx context.Context, d job.Delivery) error {
	if err := q.client.LRem(ctx, q.processing, 1, d.Receipt).Err(); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// Nack はメッセージを pending の末尾に戻す
// 待機中の他のメッセージが先に配信される
func (q *Queue) Nack(ctx context.Context, d job.Delivery) error {
	_, err := q.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LRem(ctx, q.processing, 1, d.Receipt)
		pipe.LPush(ctx, q.pending, d.Receipt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to nack message: %w", err)
	}
	return nil
}

// Recover は processing に残ったメッセージをすべて pending に戻す
func (q *Queue) Recover(ctx context.Context) (int, error) {
	count := 0
	for {
		_, err := q.client.LMove(ctx, q.processing, q.pending, "LEFT", "RIGHT").Result()
		if errors.Is(err, goredis.Nil) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("failed to recover messages: %w", err)
		}
		count++
	}
}

// Len は pending と processing の件数を返す
func (q *Queue) Len(ctx context.Context) (pending, processing int64, err error) {
	pending, err = q.client.LLen(ctx, q.pending).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count pending messages: %w", err)
	}
	processing, err = q.client.LLen(ctx, q.processing).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count processing messages: %w", err)
	}
	return pending, processing, nil
}

// インターフェース実装の確認
var _ job.Queue = (*Queue)(nil)
