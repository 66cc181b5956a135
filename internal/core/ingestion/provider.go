package ingestion

import "context"

// DocumentLoader はディレクトリからドキュメントを読み込むインターフェース
// PDF やテキストなどファイル形式ごとの読み込みは実装側が担う
type DocumentLoader interface {
	// Load は dir 配下のドキュメントを決定的な順序で返す
	Load(ctx context.Context, dir string) ([]*Document, error)
}

// Splitter はページのテキストをチャンクに分割するインターフェース
// 最大文字数とオーバーラップは実装側の設定に従う
type Splitter interface {
	Split(text string) ([]string, error)
}

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	// BatchEmbed は複数テキストのEmbeddingを入力と同じ順序で返す
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
	// MaxBatchSize は1回の BatchEmbed で渡せる最大件数を返す
	MaxBatchSize() int
}
