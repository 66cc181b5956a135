package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Retriever はクエリに近いチャンクをインデックスから取得する
type Retriever struct {
	index    Index
	embedder Embedder
	strategy Strategy
	k        int
	lambda   float64
	logger   *slog.Logger
}

// RetrieverOption は Retriever のオプション設定
type RetrieverOption func(*Retriever)

// WithRetrieverLogger はロガーを設定する
func WithRetrieverLogger(logger *slog.Logger) RetrieverOption {
	return func(r *Retriever) {
		r.logger = logger
	}
}

// WithDefaultStrategy はパラメータで指定がない場合の検索戦略を設定する
func WithDefaultStrategy(strategy Strategy) RetrieverOption {
	return func(r *Retriever) {
		r.strategy = strategy
	}
}

// WithDefaultK はパラメータで指定がない場合の取得件数を設定する
func WithDefaultK(k int) RetrieverOption {
	return func(r *Retriever) {
		if k > 0 {
			r.k = k
		}
	}
}

// WithLambda はMMRの関連度重みを設定する
func WithLambda(lambda float64) RetrieverOption {
	return func(r *Retriever) {
		r.lambda = lambda
	}
}

// NewRetriever は新しいRetrieverを作成する
func NewRetriever(index Index, embedder Embedder, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		index:    index,
		embedder: embedder,
		strategy: StrategySimilarity,
		k:        DefaultK,
		lambda:   DefaultLambda,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Retrieve はクエリに対して上位K件のチャンクを返す
// インデックスの結果は加工せずそのまま返す
func (r *Retriever) Retrieve(ctx context.Context, params RetrieveParams) (*RetrievalResult, error) {
	if r.index == nil {
		return nil, fmt.Errorf("%w: index is not initialized", ErrRetrieval)
	}
	if strings.TrimSpace(params.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", ErrRetrieval)
	}

	k := params.K
	if k <= 0 {
		k = r.k
	}
	strategy := params.Strategy
	if strategy == "" {
		strategy = r.strategy
	}

	// クエリをEmbeddingに変換
	vector, err := r.embedder.Embed(ctx, params.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed query: %w", ErrRetrieval, err)
	}

	opts := SearchOptions{
		K:        k,
		FetchK:   k * DefaultFetchKMultiplier,
		Lambda:   r.lambda,
		Strategy: strategy,
	}

	r.logger.Debug("executing similarity search", "k", k, "strategy", strategy)

	matches, err := r.index.SimilaritySearch(ctx, vector, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	if matches == nil {
		matches = []*Match{}
	}

	r.logger.Info("retrieval completed", "matches", len(matches), "strategy", strategy)

	return &RetrievalResult{
		Query:   params.Query,
		Matches: matches,
	}, nil
}
