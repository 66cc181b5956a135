package ask

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultQueryMaxLength はクエリの最大文字数のデフォルト値
const DefaultQueryMaxLength = 2000

// safeQueryPattern は許可する文字（英数字、空白、一般的な句読点）
var safeQueryPattern = regexp.MustCompile(`^[a-zA-Z0-9\s?.!,;:'"\-()/]+$`)

func validateSafeQuery(fl validator.FieldLevel) bool {
	return safeQueryPattern.MatchString(fl.Field().String())
}

// QueryValidator は外部から受け取ったクエリ文字列を検証する
type QueryValidator struct {
	validate  *validator.Validate
	maxLength int
}

// NewQueryValidator は新しいQueryValidatorを作成する
// maxLength が0以下の場合は DefaultQueryMaxLength を使う
func NewQueryValidator(maxLength int) *QueryValidator {
	if maxLength <= 0 {
		maxLength = DefaultQueryMaxLength
	}
	v := validator.New()
	// 固定のタグ名と関数なので登録は失敗しない
	_ = v.RegisterValidation("safequery", validateSafeQuery)

	return &QueryValidator{
		validate:  v,
		maxLength: maxLength,
	}
}

// Validate は前後の空白を除いたクエリを検証し、正規化済みの値を返す
func (v *QueryValidator) Validate(text string) (string, error) {
	query := strings.TrimSpace(text)

	tag := fmt.Sprintf("required,max=%d,safequery", v.maxLength)
	if err := v.validate.Var(query, tag); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return "", v.toValidationError(fieldErrs[0])
		}
		return "", fmt.Errorf("%w: %w", ErrValidation, err)
	}

	return query, nil
}

func (v *QueryValidator) toValidationError(fe validator.FieldError) *ValidationError {
	ve := &ValidationError{Field: "query_text", Constraint: fe.Tag()}
	switch fe.Tag() {
	case "required":
		ve.Message = "Query must not be empty"
	case "max":
		ve.Message = fmt.Sprintf("Query exceeds maximum length of %d characters", v.maxLength)
	case "safequery":
		ve.Message = "Query contains invalid characters"
	default:
		ve.Message = "Query is not acceptable"
	}
	return ve
}
