package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload_Single(t *testing.T) {
	msgs, isBatch, err := DecodePayload([]byte(`{"query_id":"q1","query_text":"hello"}`))
	require.NoError(t, err)

	assert.False(t, isBatch)
	assert.Equal(t, []Message{{QueryID: "q1", QueryText: "hello"}}, msgs)
}

func TestDecodePayload_Batch(t *testing.T) {
	payload := `{"Records":[
		{"body":"{\"query_id\":\"q1\",\"query_text\":\"first\"}"},
		{"body":"not json"},
		{"body":"{\"query_id\":\"q3\",\"query_text\":\"third\"}"}
	]}`

	msgs, isBatch, err := DecodePayload([]byte(payload))
	require.NoError(t, err)

	assert.True(t, isBatch)
	require.Len(t, msgs, 3)
	assert.Equal(t, "q1", msgs[0].QueryID)
	assert.Empty(t, msgs[1].QueryID)
	assert.Equal(t, "third", msgs[2].QueryText)
}

func TestDecodePayload_Invalid(t *testing.T) {
	_, _, err := DecodePayload([]byte(`[1,2]`))
	require.Error(t, err)
}
