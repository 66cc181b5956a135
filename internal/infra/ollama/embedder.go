package ollama

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/jinford/doc-rag/internal/core/ingestion"
	"github.com/jinford/doc-rag/internal/core/search"
)

const (
	// DefaultEmbeddingModel はデフォルトのEmbeddingモデル
	DefaultEmbeddingModel = "nomic-embed-text"
	// DefaultEmbeddingDimension は nomic-embed-text の次元数
	DefaultEmbeddingDimension = 768
	// DefaultMaxBatchSize は1回のリクエストで送るテキスト数の上限
	DefaultMaxBatchSize = 64
)

// Embedder は Ollama を使用してテキストをベクトルに変換する
type Embedder struct {
	embedder     embeddings.Embedder
	model        string
	maxBatchSize int
}

// NewEmbedder は Ollama サーバーに接続する Embedder を作成する
func NewEmbedder(serverURL, model string) (*Embedder, error) {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	if serverURL == "" {
		serverURL = DefaultServerURL
	}

	client, err := ollama.New(
		ollama.WithModel(model),
		ollama.WithServerURL(serverURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama embedding client: %w", err)
	}

	return NewEmbedderWithClient(client, model)
}

// NewEmbedderWithClient は任意の EmbedderClient から Embedder を作成する
func NewEmbedderWithClient(client embeddings.EmbedderClient, model string) (*Embedder, error) {
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(DefaultMaxBatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to construct ollama embedder: %w", err)
	}
	return &Embedder{
		embedder:     embedder,
		model:        model,
		maxBatchSize: DefaultMaxBatchSize,
	}, nil
}

// Embed は単一テキストの Embedding を生成する
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return vector, nil
}

// BatchEmbed はバッチで Embedding を生成する
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch (got %d want %d)", len(vectors), len(texts))
	}
	return vectors, nil
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}

// MaxBatchSize はバッチ処理の最大サイズを返す
func (e *Embedder) MaxBatchSize() int {
	return e.maxBatchSize
}

// インターフェース実装の確認
var (
	_ ingestion.Embedder = (*Embedder)(nil)
	_ search.Embedder    = (*Embedder)(nil)
)
