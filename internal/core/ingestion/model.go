package ingestion

import "time"

// Page はドキュメントの1ページを表す
type Page struct {
	Number int    // ページ番号（ローダーが付与した値をそのまま使う）
	Text   string // ページの生テキスト
}

// Document はローダーが読み込んだドキュメントを表す（読み込み後は不変）
type Document struct {
	Source string // ドキュメントのパス
	Pages  []Page // ページ順に並んだページ一覧
}

// Chunk はドキュメントの1ページから切り出したテキスト断片を表す
type Chunk struct {
	ID       string // source:page:position 形式の識別子（AssignChunkIDs で付与）
	Source   string
	Page     int
	Position int // ページ内での分割順
	Text     string
}

// Metadata はインデックスに保存するチャンクのメタデータを返す
func (c *Chunk) Metadata() map[string]any {
	return map[string]any{
		"id":       c.ID,
		"source":   c.Source,
		"page":     c.Page,
		"position": c.Position,
	}
}

// Entry はベクトルインデックスに保存される1件のエントリ
type Entry struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  map[string]any
}

// IngestParams はインジェスト処理のパラメータ
type IngestParams struct {
	DataDir string // 読み込むドキュメントのディレクトリ
	Reset   bool   // true の場合、インジェスト前に永続化済みインデックスを消去する
}

// IngestResult はインジェスト処理の結果
type IngestResult struct {
	Documents      int
	TotalChunks    int
	ExistingChunks int
	AddedChunks    int
	Duration       time.Duration
}
