package ollama

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/jinford/doc-rag/internal/core/ask"
)

const (
	// DefaultModel はデフォルトの回答生成モデル
	DefaultModel = "mistral"
	// DefaultServerURL はOllamaサーバーのデフォルトURL
	DefaultServerURL = "http://localhost:11434"
	// DefaultTimeout は1回の生成呼び出しのタイムアウト
	DefaultTimeout = 120 * time.Second
)

// Client は Ollama を使用した回答生成バックエンド
type Client struct {
	llm     llms.Model
	model   string
	timeout time.Duration
}

// NewClient は Ollama サーバーに接続する Client を作成する
func NewClient(serverURL, model string, timeout time.Duration) (*Client, error) {
	if model == "" {
		model = DefaultModel
	}
	if serverURL == "" {
		serverURL = DefaultServerURL
	}

	llm, err := ollama.New(
		ollama.WithModel(model),
		ollama.WithServerURL(serverURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
	}

	return NewClientWithModel(llm, model, timeout), nil
}

// NewClientWithModel は任意の llms.Model から Client を作成する
func NewClientWithModel(llm llms.Model, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		llm:     llm,
		model:   model,
		timeout: timeout,
	}
}

// ModelName はモデル名を返す
func (c *Client) ModelName() string {
	return c.model
}

// GenerateCompletion はプロンプトから回答を生成する
func (c *Client) GenerateCompletion(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	completion, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt)
	if err != nil {
		return "", fmt.Errorf("ollama generation failed: %w", err)
	}
	return completion, nil
}

// インターフェース実装の確認
var _ ask.GenerationBackend = (*Client)(nil)
