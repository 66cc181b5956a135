package ask

import "github.com/jinford/doc-rag/internal/core/search"

// AskParams は質問応答のパラメータを表す
type AskParams struct {
	Query    string          // ユーザーの質問文
	K        int             // 取得するチャンク数（デフォルト: 5）
	Strategy search.Strategy // 検索戦略（空の場合は既定値）
}

// AskResult は質問応答の結果を表す
type AskResult struct {
	Query   string   `json:"query_text"`
	Answer  string   `json:"response_text"`
	Sources []string `json:"sources"` // コンテキストに含めたチャンクID（検索順）
}
