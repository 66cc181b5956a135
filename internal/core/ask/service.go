package ask

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jinford/doc-rag/internal/core/search"
)

// GenerationBackend は回答生成バックエンドのインターフェース
// 実装（Ollama / OpenAI）は起動時の設定で選択する
type GenerationBackend interface {
	GenerateCompletion(ctx context.Context, prompt string) (string, error)
}

// Retriever はチャンク検索インターフェース（テスト時のモック用に消費者側で定義）
type Retriever interface {
	Retrieve(ctx context.Context, params search.RetrieveParams) (*search.RetrievalResult, error)
}

// AskService は質問応答のビジネスロジックを提供する
type AskService struct {
	retriever Retriever
	llm       GenerationBackend
	validator *QueryValidator
	budget    ContextBudget
	observe   func(time.Duration)
	logger    *slog.Logger
}

type AskServiceOption func(*AskService)

// WithAskLogger は AskService にロガーを設定する
func WithAskLogger(logger *slog.Logger) AskServiceOption {
	return func(s *AskService) {
		s.logger = logger
	}
}

// WithContextBudget はコンテキストのトークン上限を設定する
func WithContextBudget(budget ContextBudget) AskServiceOption {
	return func(s *AskService) {
		s.budget = budget
	}
}

// WithQueryValidator はクエリ検証器を差し替える
func WithQueryValidator(v *QueryValidator) AskServiceOption {
	return func(s *AskService) {
		s.validator = v
	}
}

// WithAskObserver は処理時間の通知先を設定する（メトリクス用）
func WithAskObserver(fn func(time.Duration)) AskServiceOption {
	return func(s *AskService) {
		s.observe = fn
	}
}

// NewAskService は新しいAskServiceを作成する
func NewAskService(
	retriever Retriever,
	llm GenerationBackend,
	opts ...AskServiceOption,
) *AskService {
	svc := &AskService{
		retriever: retriever,
		llm:       llm,
		validator: NewQueryValidator(DefaultQueryMaxLength),
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.validator == nil {
		svc.validator = NewQueryValidator(DefaultQueryMaxLength)
	}

	return svc
}

// Validate はクエリを検証し、正規化済みの値を返す
func (s *AskService) Validate(query string) (string, error) {
	return s.validator.Validate(query)
}

// Ask は質問に対してRAGベースで回答を生成する
func (s *AskService) Ask(ctx context.Context, params AskParams) (*AskResult, error) {
	startTime := time.Now()
	if s.observe != nil {
		defer func() { s.observe(time.Since(startTime)) }()
	}

	// 1. バリデーション
	query, err := s.validator.Validate(params.Query)
	if err != nil {
		return nil, err
	}

	// 2. 検索
	result, err := s.retriever.Retrieve(ctx, search.RetrieveParams{
		Query:    query,
		K:        params.K,
		Strategy: params.Strategy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}

	// 3. コンテキスト組み立て
	contextText, used := AssembleContext(result, s.budget)
	s.logger.Info("context assembled",
		"retrieved", len(result.Matches),
		"used", len(used),
	)

	// 4. プロンプト構築
	prompt, err := BuildPrompt(contextText, query)
	if err != nil {
		return nil, err
	}

	// 5. LLMで回答生成
	s.logger.Info("generating answer with LLM")
	answer, err := s.llm.GenerateCompletion(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationBackend, err)
	}
	if strings.TrimSpace(answer) == "" {
		return nil, fmt.Errorf("%w: empty completion", ErrGenerationBackend)
	}

	// 6. ソースはコンテキストに含めたチャンクのIDのみ（回答文からは抽出しない）
	sources := make([]string, 0, len(used))
	for _, m := range used {
		sources = append(sources, m.ID)
	}

	s.logger.Info("ask completed successfully",
		"answerLength", len(answer),
		"sources", len(sources),
	)

	return &AskResult{
		Query:   query,
		Answer:  answer,
		Sources: sources,
	}, nil
}
