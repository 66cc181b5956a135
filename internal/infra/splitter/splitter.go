package splitter

import (
	"fmt"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/jinford/doc-rag/internal/core/ingestion"
)

const (
	// DefaultChunkSize はチャンクの最大文字数
	DefaultChunkSize = 800
	// DefaultChunkOverlap は隣接チャンク間で重複させる文字数
	DefaultChunkOverlap = 80
)

// RecursiveSplitter は区切り文字を段階的に細かくしながらテキストを分割する
type RecursiveSplitter struct {
	splitter textsplitter.RecursiveCharacter
}

// New は新しい RecursiveSplitter を作成する
// 0以下の値はデフォルト値に置き換える
func New(chunkSize, chunkOverlap int) (*RecursiveSplitter, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	if chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", chunkOverlap, chunkSize)
	}

	return &RecursiveSplitter{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}, nil
}

// Split はテキストを分割する
func (s *RecursiveSplitter) Split(text string) ([]string, error) {
	segments, err := s.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}
	return segments, nil
}

// インターフェース実装の確認
var _ ingestion.Splitter = (*RecursiveSplitter)(nil)
