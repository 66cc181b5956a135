package ask

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryValidator_Validate(t *testing.T) {
	v := NewQueryValidator(0)

	cases := []struct {
		name       string
		input      string
		want       string
		constraint string
	}{
		{name: "plain question", input: "How much money does a player start with?", want: "How much money does a player start with?"},
		{name: "trims whitespace", input: "\t  What is RAG?\n", want: "What is RAG?"},
		{name: "punctuation", input: `Is "free parking" (house rule) allowed; yes/no - ok!`, want: `Is "free parking" (house rule) allowed; yes/no - ok!`},
		{name: "empty", input: "", constraint: "required"},
		{name: "whitespace only", input: "   \n\t", constraint: "required"},
		{name: "too long", input: strings.Repeat("a", DefaultQueryMaxLength+1), constraint: "max"},
		{name: "angle brackets", input: "<script>alert(1)</script>", constraint: "safequery"},
		{name: "non ascii", input: "日本語の質問", constraint: "safequery"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := v.Validate(tc.input)
			if tc.constraint == "" {
				require.NoError(t, err)
				assert.Equal(t, tc.want, got)
				return
			}

			require.ErrorIs(t, err, ErrValidation)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tc.constraint, ve.Constraint)
			assert.NotEmpty(t, ve.Message)
		})
	}
}

func TestQueryValidator_MaxLengthBoundary(t *testing.T) {
	v := NewQueryValidator(10)

	_, err := v.Validate(strings.Repeat("a", 10))
	require.NoError(t, err)

	_, err = v.Validate(strings.Repeat("a", 11))
	require.Error(t, err)
	assert.Contains(t, PublicMessage(err), "10 characters")
}

func TestPublicMessage(t *testing.T) {
	assert.Empty(t, PublicMessage(nil))
	assert.Equal(t, "Invalid query: Query must not be empty",
		PublicMessage(&ValidationError{Field: "query_text", Constraint: "required", Message: "Query must not be empty"}))
	assert.Equal(t, GenericErrorMessage, PublicMessage(errors.New("pq: password authentication failed")))
}
