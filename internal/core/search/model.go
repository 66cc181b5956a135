package search

import "fmt"

// Strategy は検索戦略を表す
type Strategy string

const (
	// StrategySimilarity は類似度順の上位K件を返す
	StrategySimilarity Strategy = "similarity"
	// StrategyMMR は関連度と多様性を両立させる（Maximal Marginal Relevance）
	StrategyMMR Strategy = "mmr"
)

// ParseStrategy は文字列から検索戦略を解釈する
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategySimilarity, StrategyMMR:
		return Strategy(s), nil
	case "":
		return StrategySimilarity, nil
	default:
		return "", fmt.Errorf("unknown retrieval strategy: %q", s)
	}
}

const (
	// DefaultK は取得件数のデフォルト値
	DefaultK = 5
	// DefaultFetchKMultiplier はMMR用に先に取得する候補数の倍率
	DefaultFetchKMultiplier = 4
	// DefaultLambda はMMRの関連度重み（1で類似度のみ、0で多様性のみ）
	DefaultLambda = 0.5
)

// SearchOptions はインデックスに渡す検索オプション
type SearchOptions struct {
	K        int
	FetchK   int     // MMRの候補数（K以上）
	Lambda   float64 // MMRの関連度重み
	Strategy Strategy
}

// Match は検索でヒットした1チャンクを表す
type Match struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}

// Candidate はMMR選択の入力となる候補（Embedding付き）
type Candidate struct {
	Match     *Match
	Embedding []float32
}

// RetrievalResult は1回の検索結果を表す
// Matches はスコア降順に並び、件数はK以下
type RetrievalResult struct {
	Query   string   `json:"query"`
	Matches []*Match `json:"matches"`
}

// IDs はヒットしたチャンクIDを順序通りに返す
func (r *RetrievalResult) IDs() []string {
	ids := make([]string, 0, len(r.Matches))
	for _, m := range r.Matches {
		ids = append(ids, m.ID)
	}
	return ids
}

// RetrieveParams は検索パラメータ
type RetrieveParams struct {
	Query    string
	K        int      // 0以下の場合はデフォルト値
	Strategy Strategy // 空の場合はRetrieverの既定値
}
