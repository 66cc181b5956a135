package job

import (
	"context"
	"errors"

	"github.com/samber/mo"
)

var (
	// ErrJobPersistence はジョブストアへの読み書きの失敗
	ErrJobPersistence = errors.New("job persistence failed")
	// ErrTerminalState は終端状態のジョブを上書きしようとしたことを示す
	ErrTerminalState = errors.New("job is already in a terminal state")
	// ErrEnqueue はジョブメッセージの投入失敗
	ErrEnqueue = errors.New("job enqueue failed")
)

// Store はジョブレコードの永続化インターフェース
//
// Put は query_id をキーとしたupsert。実装は終端状態のレコードを上書きせず、
// その場合は ErrTerminalState を返すこと。
type Store interface {
	Get(ctx context.Context, queryID string) (mo.Option[*Job], error)
	Put(ctx context.Context, job *Job) error
}

// Delivery はキューから受け取った1件のメッセージ
type Delivery struct {
	Message Message
	Receipt string // Ack / Nack に使うキュー固有の受領情報
}

// Queue はジョブメッセージのキューインターフェース（少なくとも1回の配信）
type Queue interface {
	// Enqueue はメッセージを投入する
	Enqueue(ctx context.Context, msg Message) error
	// Receive は最大max件のメッセージを受け取る（処理中として保持される）
	Receive(ctx context.Context, max int) ([]Delivery, error)
	// Ack は処理済みのメッセージを削除する
	Ack(ctx context.Context, d Delivery) error
	// Nack はメッセージを再配信対象に戻す
	Nack(ctx context.Context, d Delivery) error
	// Recover は処理中のまま残ったメッセージをすべて再配信対象に戻す
	Recover(ctx context.Context) (int, error)
}

// Observer はジョブ処理結果の通知先（メトリクス用）
type Observer interface {
	JobCompleted(status string)
	RecordFailed()
}

type noopObserver struct{}

func (noopObserver) JobCompleted(string) {}
func (noopObserver) RecordFailed()       {}
