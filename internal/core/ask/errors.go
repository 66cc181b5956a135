package ask

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation はクエリの検証エラー
	ErrValidation = errors.New("invalid query")
	// ErrGenerationBackend は回答生成バックエンドの失敗（エラー、タイムアウト、空応答）
	ErrGenerationBackend = errors.New("generation backend failed")
)

// GenericErrorMessage は外部に返す汎用エラーメッセージ
const GenericErrorMessage = "An error occurred processing your query. Please try again."

// ValidationError は違反した制約を特定できる検証エラー
type ValidationError struct {
	Field      string // 対象フィールド
	Constraint string // 違反した制約（required, max, safequery）
	Message    string // 利用者向けメッセージ
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// PublicMessage は外部の呼び出し元に返してよいエラーメッセージを返す
// 内部のエラー詳細は含めない
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return "Invalid query: " + ve.Message
	}
	return GenericErrorMessage
}
