package ingestion

import (
	"context"
	"fmt"
	"log/slog"
)

const (
	// DefaultEmbeddingBatchSize はEmbedding APIのデフォルトバッチサイズ
	DefaultEmbeddingBatchSize = 100
	// MinBatchSize は最小バッチサイズ（MaxBatchSize()が0を返した場合のフォールバック）
	MinBatchSize = 1
)

// IndexStats は差分インデックス化の統計情報
type IndexStats struct {
	Candidates int // 入力チャンク数（ID重複を除いた件数）
	Existing   int // 既にインデックスに存在したチャンク数
	Added      int // 新規に追加したチャンク数
}

// IncrementalIndexer はインデックスに未登録のチャンクのみを書き込む
//
// 1回のインジェスト実行につき書き込みは1プロセスのみを前提とする。
// 既存ID取得と書き込みはトランザクションで囲まないため、並行実行された場合は
// 同じIDを二重にupsertすることがある（IDキーなので重複エントリにはならない）。
type IncrementalIndexer struct {
	index    Index
	embedder Embedder
	logger   *slog.Logger

	// 実際に使用するバッチサイズ（Embedder.MaxBatchSize()でクリップ済み）
	batchSize int
}

// IndexerOption は IncrementalIndexer のオプション設定
type IndexerOption func(*IncrementalIndexer)

// WithIndexerLogger はロガーを設定する
func WithIndexerLogger(logger *slog.Logger) IndexerOption {
	return func(ix *IncrementalIndexer) {
		ix.logger = logger
	}
}

// WithIndexerBatchSize はEmbeddingバッチサイズを上書きする
func WithIndexerBatchSize(size int) IndexerOption {
	return func(ix *IncrementalIndexer) {
		ix.batchSize = size
	}
}

// NewIncrementalIndexer は新しい IncrementalIndexer を作成する
func NewIncrementalIndexer(index Index, embedder Embedder, opts ...IndexerOption) *IncrementalIndexer {
	ix := &IncrementalIndexer{
		index:     index,
		embedder:  embedder,
		logger:    slog.Default(),
		batchSize: DefaultEmbeddingBatchSize,
	}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.logger == nil {
		ix.logger = slog.Default()
	}

	// バッチサイズをEmbedderの最大値でクリップ
	maxBatchSize := embedder.MaxBatchSize()
	if maxBatchSize <= 0 {
		ix.logger.Warn("Embedder.MaxBatchSize() returned an invalid value, using fallback",
			"returned", maxBatchSize,
			"fallback", MinBatchSize,
		)
		maxBatchSize = MinBatchSize
	}
	if ix.batchSize > maxBatchSize {
		ix.batchSize = maxBatchSize
	}
	if ix.batchSize <= 0 {
		ix.batchSize = MinBatchSize
	}

	return ix
}

// Index は未登録のチャンクだけをEmbeddingしてインデックスに追加し、永続化する
// 新規チャンクがない場合は既存ID取得以外に何もしない
func (ix *IncrementalIndexer) Index(ctx context.Context, chunks []*Chunk) (*IndexStats, error) {
	// 1. 既存IDの取得（IDのみ）
	existing, err := ix.index.ExistingIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch existing ids: %w", ErrIndexWrite, err)
	}
	ix.logger.Info("fetched existing ids", "count", len(existing))

	// 2. 新規と既存に分割
	newChunks, stats := partition(chunks, existing)
	if len(newChunks) == 0 {
		ix.logger.Info("no new chunks to add")
		return stats, nil
	}

	ix.logger.Info("adding new chunks", "count", len(newChunks))

	// 3. 新規分のみEmbeddingしてupsert
	for start := 0; start < len(newChunks); start += ix.batchSize {
		end := min(start+ix.batchSize, len(newChunks))
		if err := ix.addBatch(ctx, newChunks[start:end]); err != nil {
			return nil, err
		}
		stats.Added += end - start
	}

	// 4. 返却前に永続化
	if err := ix.index.Persist(ctx); err != nil {
		return nil, fmt.Errorf("%w: failed to persist index: %w", ErrIndexWrite, err)
	}

	return stats, nil
}

func (ix *IncrementalIndexer) addBatch(ctx context.Context, batch []*Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	vectors, err := ix.embedder.BatchEmbed(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: failed to embed chunks: %w", ErrIndexWrite, err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("%w: embedding count mismatch (got %d want %d)", ErrIndexWrite, len(vectors), len(batch))
	}

	entries := make([]Entry, len(batch))
	for i, c := range batch {
		entries[i] = Entry{
			ID:        c.ID,
			Text:      c.Text,
			Embedding: vectors[i],
			Metadata:  c.Metadata(),
		}
	}

	if err := ix.index.Add(ctx, entries); err != nil {
		return fmt.Errorf("%w: failed to add entries: %w", ErrIndexWrite, err)
	}
	return nil
}

// partition は候補チャンクを未登録のものと登録済みのものに分ける
// 候補内で同じIDが重複した場合は先勝ちとする
func partition(chunks []*Chunk, existing map[string]struct{}) ([]*Chunk, *IndexStats) {
	stats := &IndexStats{}
	seen := make(map[string]struct{}, len(chunks))
	newChunks := make([]*Chunk, 0, len(chunks))

	for _, c := range chunks {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		stats.Candidates++

		if _, ok := existing[c.ID]; ok {
			stats.Existing++
			continue
		}
		newChunks = append(newChunks, c)
	}

	return newChunks, stats
}
