package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jinford/doc-rag/internal/core/search"
)

// DefaultCacheSize はクエリEmbeddingキャッシュのデフォルト件数
const DefaultCacheSize = 1024

// CachedEmbedder はクエリEmbeddingをLRUキャッシュするデコレータ
// 同じ質問が繰り返される場合にEmbedding呼び出しを省く
type CachedEmbedder struct {
	next  search.Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder は新しい CachedEmbedder を作成する
func NewCachedEmbedder(next search.Embedder, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("failed to init embedding cache: %w", err)
	}
	return &CachedEmbedder{next: next, cache: cache}, nil
}

// Embed はキャッシュにあればそれを返し、なければ委譲先で生成して保存する
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if vector, ok := e.cache.Get(key); ok {
		return cloneVector(vector), nil
	}

	vector, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, cloneVector(vector))
	return vector, nil
}

// Len はキャッシュ済みの件数を返す
func (e *CachedEmbedder) Len() int {
	return e.cache.Len()
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

// インターフェース実装の確認
var _ search.Embedder = (*CachedEmbedder)(nil)
