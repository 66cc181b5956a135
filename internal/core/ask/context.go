package ask

import (
	"strings"
	"unicode/utf8"

	"github.com/jinford/doc-rag/internal/core/search"
)

// ContextDelimiter はコンテキスト内のチャンク区切り
const ContextDelimiter = "\n\n---\n\n"

// TokenCounter はトークン数の計測インターフェース
type TokenCounter interface {
	// Count はテキストのトークン数を返す
	Count(text string) int
	// Truncate は先頭から最大maxTokensトークン分のテキストを返す
	Truncate(text string, maxTokens int) string
}

// RuneCounter はルーン数をトークン数とみなす簡易カウンタ
type RuneCounter struct{}

var _ TokenCounter = RuneCounter{}

func (RuneCounter) Count(text string) int {
	return utf8.RuneCountInString(text)
}

func (RuneCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= maxTokens {
		return text
	}
	return string(runes[:maxTokens])
}

// ContextBudget はコンテキストのサイズ上限
type ContextBudget struct {
	MaxTokens int          // 0以下の場合は無制限
	Counter   TokenCounter // nil の場合は RuneCounter
}

// AssembleContext は検索結果のチャンクを返却順に区切り文字で連結する
//
// 上限を超えるチャンクの手前で打ち切る。最初のチャンクは上限に合わせて切り詰めてでも必ず含める。
// 戻り値の used はコンテキストに含めたチャンク（検索結果の先頭からの部分列）。
func AssembleContext(result *search.RetrievalResult, budget ContextBudget) (string, []*search.Match) {
	used := []*search.Match{}
	if result == nil || len(result.Matches) == 0 {
		return "", used
	}

	counter := budget.Counter
	if counter == nil {
		counter = RuneCounter{}
	}

	var sb strings.Builder
	tokens := 0
	delimiterTokens := counter.Count(ContextDelimiter)

	for i, m := range result.Matches {
		text := m.Text
		cost := counter.Count(text)
		if i > 0 {
			cost += delimiterTokens
		}

		if budget.MaxTokens > 0 && tokens+cost > budget.MaxTokens {
			if i > 0 {
				break
			}
			text = counter.Truncate(text, budget.MaxTokens)
			cost = counter.Count(text)
		}

		if i > 0 {
			sb.WriteString(ContextDelimiter)
		}
		sb.WriteString(text)
		tokens += cost
		used = append(used, m)
	}

	return sb.String(), used
}
