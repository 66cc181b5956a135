package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter_CountAndTruncate(t *testing.T) {
	c, err := New()
	if err != nil {
		// 語彙ファイルの取得にネットワークが必要
		t.Skipf("tiktoken encoding unavailable: %v", err)
	}

	text := strings.Repeat("hello world ", 50)
	total := c.Count(text)
	require.Greater(t, total, 10)

	truncated := c.Truncate(text, 10)
	assert.Equal(t, 10, c.Count(truncated))
	assert.True(t, strings.HasPrefix(text, truncated))

	assert.Equal(t, "short", c.Truncate("short", 100))
	assert.Empty(t, c.Truncate(text, 0))
}
