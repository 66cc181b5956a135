package search

import (
	"context"
	"errors"
)

// ErrRetrieval は検索処理の失敗を表す
// インデックス未初期化、ストア到達不能、クエリEmbedding失敗を含む
var ErrRetrieval = errors.New("retrieval failed")

// Index はベクトル検索インターフェース（テスト時のモック用に消費者側で定義）
type Index interface {
	// SimilaritySearch はクエリベクトルに近いチャンクをスコア降順で返す
	SimilaritySearch(ctx context.Context, vector []float32, opts SearchOptions) ([]*Match, error)
}

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
}
