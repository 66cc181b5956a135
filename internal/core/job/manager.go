package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/doc-rag/internal/core/ask"
	"github.com/jinford/doc-rag/internal/core/search"
)

const (
	// DefaultJobTimeout は1ジョブあたりの処理時間の上限
	DefaultJobTimeout = 2 * time.Minute
	// recordTimeout は状態記録の書き込みに使う時間の上限
	recordTimeout = 10 * time.Second
)

// Asker は質問応答インターフェース（テスト時のモック用に消費者側で定義）
type Asker interface {
	Ask(ctx context.Context, params ask.AskParams) (*ask.AskResult, error)
}

// QueryValidator はクエリ検証インターフェース
type QueryValidator interface {
	Validate(query string) (string, error)
}

// Manager は非同期クエリジョブの投入と処理を管理する
type Manager struct {
	store     Store
	queue     Queue
	asker     Asker
	validator QueryValidator
	timeout   time.Duration
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
}

// ManagerOption は Manager のオプション設定
type ManagerOption func(*Manager)

// WithManagerLogger はロガーを設定する
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithQueue はジョブ投入先のキューを設定する
// 未設定の場合、Submit はレコード作成のみを行う
func WithQueue(queue Queue) ManagerOption {
	return func(m *Manager) {
		m.queue = queue
	}
}

// WithJobTimeout は1ジョブあたりの処理時間の上限を設定する
func WithJobTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.timeout = timeout
	}
}

// WithObserver は処理結果の通知先を設定する
func WithObserver(observer Observer) ManagerOption {
	return func(m *Manager) {
		m.observer = observer
	}
}

// WithValidator はSubmit時のクエリ検証器を設定する
func WithValidator(v QueryValidator) ManagerOption {
	return func(m *Manager) {
		m.validator = v
	}
}

// NewManager は新しいManagerを作成する
func NewManager(store Store, asker Asker, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:     store,
		asker:     asker,
		validator: ask.NewQueryValidator(ask.DefaultQueryMaxLength),
		timeout:   DefaultJobTimeout,
		observer:  noopObserver{},
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.observer == nil {
		m.observer = noopObserver{}
	}
	if m.timeout <= 0 {
		m.timeout = DefaultJobTimeout
	}
	return m
}

// Submit はクエリを検証してPENDINGジョブを作成し、キューに投入する
func (m *Manager) Submit(ctx context.Context, queryText string) (*Job, error) {
	query, err := m.validator.Validate(queryText)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	job := &Job{
		QueryID:   uuid.NewString(),
		QueryText: query,
		Status:    StatusPending,
		Sources:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.store.Put(ctx, job); err != nil {
		return nil, fmt.Errorf("%w: failed to create job: %w", ErrJobPersistence, err)
	}

	if m.queue != nil {
		if err := m.queue.Enqueue(ctx, Message{QueryID: job.QueryID, QueryText: job.QueryText}); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEnqueue, err)
		}
	}

	m.logger.Info("job submitted", "queryID", job.QueryID)
	return job, nil
}

// Get はジョブレコードを取得する
func (m *Manager) Get(ctx context.Context, queryID string) (mo.Option[*Job], error) {
	found, err := m.store.Get(ctx, queryID)
	if err != nil {
		return mo.None[*Job](), fmt.Errorf("%w: failed to get job: %w", ErrJobPersistence, err)
	}
	return found, nil
}

// Process は1件のジョブを処理し、終端状態を記録する
//
// エラーを返さず、パニックも外に出さない。終端状態のジョブが再配信された場合は
// 何もせずに記録済みの状態を返す。
func (m *Manager) Process(ctx context.Context, msg Message) (summary Summary) {
	logger := m.logger.With("queryID", msg.QueryID)

	if msg.QueryID == "" {
		logger.Error("discarding malformed job message")
		return Summary{Status: StatusFailed, Error: "malformed message: query_id is required"}
	}

	base := &Job{
		QueryID:   msg.QueryID,
		QueryText: msg.QueryText,
		Status:    StatusPending,
		CreatedAt: m.now().UTC(),
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "panic", r)
			summary = m.failAfterPanic(ctx, base, fmt.Errorf("panic: %v", r))
		}
	}()

	existing, err := m.store.Get(ctx, msg.QueryID)
	if err != nil {
		return m.fail(ctx, base, fmt.Errorf("%w: failed to load job: %w", ErrJobPersistence, err))
	}
	if stored, ok := existing.Get(); ok {
		if stored.Status.IsTerminal() {
			logger.Info("job already completed, skipping", "status", stored.Status)
			return Summary{QueryID: stored.QueryID, Status: stored.Status, Error: stored.Error}
		}
		base.CreatedAt = stored.CreatedAt
		if base.QueryText == "" {
			base.QueryText = stored.QueryText
		}
	}

	jobCtx, cancel := context.WithTimeout(ctx, m.timeout)
	result, err := m.asker.Ask(jobCtx, ask.AskParams{Query: base.QueryText})
	cancel()
	if err != nil {
		return m.fail(ctx, base, err)
	}

	succeeded := *base
	succeeded.Status = StatusSucceeded
	succeeded.Answer = result.Answer
	succeeded.Sources = result.Sources
	succeeded.NormalizeSources()
	succeeded.UpdatedAt = m.now().UTC()

	if err := m.put(ctx, &succeeded); err != nil {
		if errors.Is(err, ErrTerminalState) {
			return m.storedSummary(ctx, base)
		}
		return m.fail(ctx, base, fmt.Errorf("%w: failed to record success: %w", ErrJobPersistence, err))
	}

	m.observer.JobCompleted(string(StatusSucceeded))
	logger.Info("job succeeded", "sources", len(succeeded.Sources))
	return Summary{QueryID: msg.QueryID, Status: StatusSucceeded}
}

// ProcessBatch は各メッセージを独立に処理する
// 1件の失敗が他のジョブの処理や記録を妨げることはない
func (m *Manager) ProcessBatch(ctx context.Context, msgs []Message) BatchResult {
	summaries := make([]Summary, 0, len(msgs))
	for _, msg := range msgs {
		summaries = append(summaries, m.Process(ctx, msg))
	}
	return BatchResult{
		BatchCount: len(summaries),
		Summaries:  summaries,
	}
}

// RecordFailure はジョブをFAILEDとして記録する
// 記録に失敗した場合もエラーを返り値で伝える
func (m *Manager) RecordFailure(ctx context.Context, job *Job, cause error) RecordOutcome {
	failed := *job
	failed.Status = StatusFailed
	failed.Answer = ""
	failed.Sources = []string{}
	failed.Error = SanitizeError(cause)
	failed.UpdatedAt = m.now().UTC()

	if err := m.put(ctx, &failed); err != nil {
		if !errors.Is(err, ErrTerminalState) {
			m.observer.RecordFailed()
		}
		return RecordOutcome{Recorded: false, Err: err}
	}
	m.observer.JobCompleted(string(StatusFailed))
	return RecordOutcome{Recorded: true}
}

func (m *Manager) fail(ctx context.Context, job *Job, cause error) Summary {
	logger := m.logger.With("queryID", job.QueryID)
	logger.Error("job failed", "error", cause)

	public := SanitizeError(cause)
	outcome := m.RecordFailure(ctx, job, cause)
	if outcome.Recorded {
		return Summary{QueryID: job.QueryID, Status: StatusFailed, Error: public}
	}

	if errors.Is(outcome.Err, ErrTerminalState) {
		return m.storedSummary(ctx, job)
	}

	// 終端状態を記録できなかった場合はPENDINGのまま残し、再配信に任せる
	logger.Error("failed to record job failure", "error", outcome.Err)
	return Summary{
		QueryID:   job.QueryID,
		Status:    StatusPending,
		Error:     public,
		Redeliver: true,
	}
}

// failAfterPanic はパニック後に失敗を記録する
// 記録中にもパニックした場合はPENDINGのまま再配信に任せる
func (m *Manager) failAfterPanic(ctx context.Context, job *Job, cause error) (summary Summary) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("failed to record job failure after panic", "queryID", job.QueryID, "panic", r)
			summary = Summary{
				QueryID:   job.QueryID,
				Status:    StatusPending,
				Error:     SanitizeError(cause),
				Redeliver: true,
			}
		}
	}()
	return m.fail(ctx, job, cause)
}

// put は呼び出し元のキャンセルに影響されずに状態を書き込む
func (m *Manager) put(ctx context.Context, job *Job) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	return m.store.Put(writeCtx, job)
}

// storedSummary は並行して記録された終端状態を読み直して返す
func (m *Manager) storedSummary(ctx context.Context, job *Job) Summary {
	found, err := m.store.Get(context.WithoutCancel(ctx), job.QueryID)
	if err == nil {
		if stored, ok := found.Get(); ok {
			return Summary{QueryID: stored.QueryID, Status: stored.Status, Error: stored.Error}
		}
	}
	return Summary{QueryID: job.QueryID, Status: StatusPending, Redeliver: true}
}

// SanitizeError はジョブレコードに保存してよい形にエラーを整形する
// 内部のエラー詳細（接続先、スタックなど）は含めない
func SanitizeError(err error) string {
	var ve *ask.ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return ask.PublicMessage(err)
	case errors.Is(err, ErrJobPersistence):
		return "job result could not be saved"
	case errors.Is(err, context.DeadlineExceeded):
		return "job timed out"
	case errors.Is(err, search.ErrRetrieval):
		return "retrieval failed"
	case errors.Is(err, ask.ErrGenerationBackend):
		return "answer generation failed"
	default:
		return "internal error"
	}
}
