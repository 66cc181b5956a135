package ingestion

import "context"

// Index はインジェストが利用するベクトルインデックスの操作を表す
// テスト時のモック用に消費者側で定義
// インデックスは「既知のチャンクかどうか」の唯一の情報源として扱う
type Index interface {
	// ExistingIDs は保存済みエントリのIDのみを返す（本文やベクトルは読まない）
	ExistingIDs(ctx context.Context) (map[string]struct{}, error)

	// Add はエントリをIDをキーとしてupsertする
	Add(ctx context.Context, entries []Entry) error

	// Persist は書き込み内容を永続ストレージへフラッシュする
	Persist(ctx context.Context) error

	// Reset は永続化済みのインデックスを消去する
	Reset(ctx context.Context) error
}
