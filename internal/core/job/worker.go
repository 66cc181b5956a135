package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultWorkerBatchSize は1回の受信で処理する最大メッセージ数
	DefaultWorkerBatchSize = 10
	// DefaultErrorBackoff は受信エラー時、または再配信が発生したバッチの後の待機時間
	DefaultErrorBackoff = 2 * time.Second
)

// Worker はキューからメッセージを受け取りジョブを処理し続ける
type Worker struct {
	manager   *Manager
	queue     Queue
	batchSize int
	backoff   time.Duration
	logger    *slog.Logger
}

// WorkerOption は Worker のオプション設定
type WorkerOption func(*Worker)

// WithWorkerLogger はロガーを設定する
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithBatchSize は1回の受信で処理する最大メッセージ数を設定する
func WithBatchSize(size int) WorkerOption {
	return func(w *Worker) {
		w.batchSize = size
	}
}

// WithErrorBackoff は受信エラー時と再配信発生時の待機時間を設定する
func WithErrorBackoff(d time.Duration) WorkerOption {
	return func(w *Worker) {
		w.backoff = d
	}
}

// NewWorker は新しいWorkerを作成する
func NewWorker(manager *Manager, queue Queue, opts ...WorkerOption) *Worker {
	w := &Worker{
		manager:   manager,
		queue:     queue,
		batchSize: DefaultWorkerBatchSize,
		backoff:   DefaultErrorBackoff,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.batchSize <= 0 {
		w.batchSize = DefaultWorkerBatchSize
	}
	return w
}

// Run はctxがキャンセルされるまでメッセージを処理する
// 起動時に処理中のまま残ったメッセージを再配信対象に戻す
func (w *Worker) Run(ctx context.Context) error {
	recovered, err := w.queue.Recover(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover in-flight messages: %w", err)
	}
	if recovered > 0 {
		w.logger.Info("requeued in-flight messages", "count", recovered)
	}

	w.logger.Info("worker started", "batchSize", w.batchSize)

	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopped")
			return nil
		}

		result, err := w.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("worker stopped")
				return nil
			}
			w.logger.Error("failed to receive messages", "error", err)
			w.wait(ctx)
			continue
		}
		if n := result.Redeliveries(); n > 0 {
			// ジョブストアが復旧するまで同じメッセージを連続で処理しない
			w.logger.Warn("jobs returned for redelivery", "count", n, "backoff", w.backoff)
			w.wait(ctx)
		}
	}
}

func (w *Worker) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.backoff):
	}
}

// RunOnce は1バッチ分のメッセージを受信して処理する
// 再配信が必要なメッセージはNackし、それ以外はAckする
func (w *Worker) RunOnce(ctx context.Context) (BatchResult, error) {
	deliveries, err := w.queue.Receive(ctx, w.batchSize)
	if err != nil {
		return BatchResult{}, err
	}
	if len(deliveries) == 0 {
		return BatchResult{Summaries: []Summary{}}, nil
	}

	msgs := make([]Message, len(deliveries))
	for i, d := range deliveries {
		msgs[i] = d.Message
	}

	result := w.manager.ProcessBatch(ctx, msgs)

	settleCtx := context.WithoutCancel(ctx)
	for i, s := range result.Summaries {
		d := deliveries[i]
		if s.Redeliver {
			if err := w.queue.Nack(settleCtx, d); err != nil {
				w.logger.Error("failed to nack message", "queryID", s.QueryID, "error", err)
			}
			continue
		}
		if err := w.queue.Ack(settleCtx, d); err != nil {
			w.logger.Error("failed to ack message", "queryID", s.QueryID, "error", err)
		}
	}

	w.logger.Info("batch processed", "count", result.BatchCount)
	return result, nil
}
