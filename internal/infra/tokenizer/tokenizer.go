package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jinford/doc-rag/internal/core/ask"
)

// DefaultEncoding はトークン計測に使うエンコーディング
const DefaultEncoding = "cl100k_base"

// Counter は tiktoken によるトークンカウンタ
type Counter struct {
	encoder *tiktoken.Tiktoken
}

// New は新しい Counter を作成する
func New() (*Counter, error) {
	encoder, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoder: %w", err)
	}
	return &Counter{encoder: encoder}, nil
}

// Count はテキストのトークン数を返す
func (c *Counter) Count(text string) int {
	return len(c.encoder.Encode(text, nil, nil))
}

// Truncate は先頭から最大maxTokensトークン分のテキストを返す
func (c *Counter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	tokens := c.encoder.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return c.encoder.Decode(tokens[:maxTokens])
}

// インターフェース実装の確認
var _ ask.TokenCounter = (*Counter)(nil)
