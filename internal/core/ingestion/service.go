package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// IngestService はドキュメント読み込みからインデックス化までのユースケースを提供する
type IngestService struct {
	loader   DocumentLoader
	splitter Splitter
	index    Index
	indexer  *IncrementalIndexer
	onAdded  func(added int)
	logger   *slog.Logger
}

type ingestServiceOptions struct {
	logger    *slog.Logger
	batchSize int
	onAdded   func(added int)
}

// IngestServiceOption は IngestService のオプション設定
type IngestServiceOption func(*ingestServiceOptions)

// WithIngestLogger は IngestService にロガーを設定する
func WithIngestLogger(logger *slog.Logger) IngestServiceOption {
	return func(o *ingestServiceOptions) {
		o.logger = logger
	}
}

// WithIngestBatchSize はEmbeddingバッチサイズを上書きする
func WithIngestBatchSize(size int) IngestServiceOption {
	return func(o *ingestServiceOptions) {
		o.batchSize = size
	}
}

// WithIngestObserver は追加チャンク数の通知先を設定する（メトリクス用）
func WithIngestObserver(fn func(added int)) IngestServiceOption {
	return func(o *ingestServiceOptions) {
		o.onAdded = fn
	}
}

// NewIngestService は新しい IngestService を作成する
func NewIngestService(
	loader DocumentLoader,
	splitter Splitter,
	index Index,
	embedder Embedder,
	opts ...IngestServiceOption,
) *IngestService {
	options := ingestServiceOptions{
		logger:    slog.Default(),
		batchSize: DefaultEmbeddingBatchSize,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &IngestService{
		loader:   loader,
		splitter: splitter,
		index:    index,
		indexer: NewIncrementalIndexer(index, embedder,
			WithIndexerLogger(options.logger),
			WithIndexerBatchSize(options.batchSize),
		),
		onAdded: options.onAdded,
		logger:  options.logger,
	}
}

// Ingest はディレクトリ内のドキュメントを差分インデックス化する
// インデックスの書き込み失敗（ErrIndexWrite）はそのまま返し、処理を中断する
func (s *IngestService) Ingest(ctx context.Context, params IngestParams) (*IngestResult, error) {
	startTime := time.Now()

	if params.DataDir == "" {
		return nil, fmt.Errorf("data dir is required")
	}

	s.logger.Info("starting ingestion", "dataDir", params.DataDir, "reset", params.Reset)

	if params.Reset {
		s.logger.Info("clearing index")
		if err := s.index.Reset(ctx); err != nil {
			return nil, fmt.Errorf("%w: failed to reset index: %w", ErrIndexWrite, err)
		}
	}

	documents, err := s.loader.Load(ctx, params.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	s.logger.Info("loaded documents", "count", len(documents))

	chunks, err := SplitDocuments(documents, s.splitter)
	if err != nil {
		return nil, err
	}
	AssignChunkIDs(chunks)

	stats, err := s.indexer.Index(ctx, chunks)
	if err != nil {
		return nil, err
	}

	if s.onAdded != nil && stats.Added > 0 {
		s.onAdded(stats.Added)
	}

	duration := time.Since(startTime)
	s.logger.Info("ingestion completed",
		"documents", len(documents),
		"chunks", stats.Candidates,
		"existing", stats.Existing,
		"added", stats.Added,
		"duration", duration,
	)

	return &IngestResult{
		Documents:      len(documents),
		TotalChunks:    stats.Candidates,
		ExistingChunks: stats.Existing,
		AddedChunks:    stats.Added,
		Duration:       duration,
	}, nil
}

// SplitDocuments はドキュメント順・ページ順・分割順を保ったままチャンク列を作る
// 空白のみのセグメントは捨てる。IDはまだ付与しない
func SplitDocuments(documents []*Document, splitter Splitter) ([]*Chunk, error) {
	var chunks []*Chunk
	for _, doc := range documents {
		for _, page := range doc.Pages {
			segments, err := splitter.Split(page.Text)
			if err != nil {
				return nil, fmt.Errorf("failed to split %s page %d: %w", doc.Source, page.Number, err)
			}
			for _, segment := range segments {
				if strings.TrimSpace(segment) == "" {
					continue
				}
				chunks = append(chunks, &Chunk{
					Source: doc.Source,
					Page:   page.Number,
					Text:   segment,
				})
			}
		}
	}
	return chunks, nil
}
