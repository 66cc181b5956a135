package redis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/doc-rag/internal/core/job"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return s, client
}

func TestJobStore_PutAndGet(t *testing.T) {
	_, client := newTestClient(t)
	store := NewJobStore(client, WithJobKeyPrefix("test"))
	ctx := context.Background()

	got, err := store.Get(ctx, "q1")
	require.NoError(t, err)
	assert.True(t, got.IsAbsent())

	require.NoError(t, store.Put(ctx, &job.Job{QueryID: "q1", QueryText: "why?", Status: job.StatusPending}))
	require.NoError(t, store.Put(ctx, &job.Job{
		QueryID:   "q1",
		QueryText: "why?",
		Status:    job.StatusSucceeded,
		Answer:    "because",
		Sources:   []string{"a.pdf:0:0"},
	}))

	got, err = store.Get(ctx, "q1")
	require.NoError(t, err)
	stored, ok := got.Get()
	require.True(t, ok)
	assert.Equal(t, job.StatusSucceeded, stored.Status)
	assert.Equal(t, "because", stored.Answer)
	assert.Equal(t, []string{"a.pdf:0:0"}, stored.Sources)
	assert.False(t, stored.CreatedAt.IsZero())
}

func TestJobStore_SucceededWithoutSourcesKeepsEmptyList(t *testing.T) {
	_, client := newTestClient(t)
	store := NewJobStore(client)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &job.Job{
		QueryID:   "q1",
		QueryText: "why?",
		Status:    job.StatusSucceeded,
		Answer:    "because",
		Sources:   []string{},
	}))

	got, err := store.Get(ctx, "q1")
	require.NoError(t, err)
	stored, ok := got.Get()
	require.True(t, ok)
	assert.NotNil(t, stored.Sources)
	assert.Empty(t, stored.Sources)

	data, err := json.Marshal(stored)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sources":[]`)
}

func TestJobStore_RefusesTerminalOverwrite(t *testing.T) {
	_, client := newTestClient(t)
	store := NewJobStore(client)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &job.Job{QueryID: "q1", Status: job.StatusFailed, Error: "job timed out"}))

	err := store.Put(ctx, &job.Job{QueryID: "q1", Status: job.StatusSucceeded, Answer: "late"})
	require.ErrorIs(t, err, job.ErrTerminalState)

	got, err := store.Get(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, got.MustGet().Status)
}

func TestJobStore_TTL(t *testing.T) {
	s, client := newTestClient(t)
	store := NewJobStore(client, WithJobTTL(time.Minute))
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &job.Job{QueryID: "q1", Status: job.StatusPending}))
	s.FastForward(2 * time.Minute)

	got, err := store.Get(ctx, "q1")
	require.NoError(t, err)
	assert.True(t, got.IsAbsent())
}

func TestJobStore_GetFailsOnUnavailableServer(t *testing.T) {
	s, client := newTestClient(t)
	store := NewJobStore(client)
	s.Close()

	_, err := store.Get(context.Background(), "q1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, job.ErrTerminalState))
}

func newTestQueue(t *testing.T) (*miniredis.Miniredis, *Queue) {
	t.Helper()
	s, client := newTestClient(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return s, NewQueue(client, "test:jobs", WithQueueLogger(logger), WithBlockTimeout(time.Second))
}

func TestQueue_ReceiveInOrderAndAck(t *testing.T) {
	_, q := newTestQueue(t)
	ctx := context.Background()

	for _, id := range []string{"q1", "q2", "q3"} {
		require.NoError(t, q.Enqueue(ctx, job.Message{QueryID: id, QueryText: "text " + id}))
	}

	deliveries, err := q.Receive(ctx, 2)
	require.NoError(t, err)
	require.Len(t, deliveries, 2)
	assert.Equal(t, "q1", deliveries[0].Message.QueryID)
	assert.Equal(t, "q2", deliveries[1].Message.QueryID)

	pending, processing, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
	assert.Equal(t, int64(2), processing)

	for _, d := range deliveries {
		require.NoError(t, q.Ack(ctx, d))
	}
	_, processing, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), processing)
}

func TestQueue_ReceiveEmpty(t *testing.T) {
	_, q := newTestQueue(t)

	deliveries, err := q.Receive(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, deliveries)
}

func TestQueue_NackRedelivers(t *testing.T) {
	_, q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, job.Message{QueryID: "q1", QueryText: "a"}))
	require.NoError(t, q.Enqueue(ctx, job.Message{QueryID: "q2", QueryText: "b"}))

	first, err := q.Receive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.NoError(t, q.Nack(ctx, first[0]))

	// 戻したメッセージは待機中のメッセージの後に配信される
	again, err := q.Receive(ctx, 2)
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Equal(t, "q2", again[0].Message.QueryID)
	assert.Equal(t, "q1", again[1].Message.QueryID)

	pending, processing, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
	assert.Equal(t, int64(2), processing)
}

func TestQueue_RecoverMovesInFlightMessages(t *testing.T) {
	_, q := newTestQueue(t)
	ctx := context.Background()

	for _, id := range []string{"q1", "q2"} {
		require.NoError(t, q.Enqueue(ctx, job.Message{QueryID: id}))
	}
	_, err := q.Receive(ctx, 2)
	require.NoError(t, err)

	n, err := q.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	deliveries, err := q.Receive(ctx, 2)
	require.NoError(t, err)
	require.Len(t, deliveries, 2)
	assert.Equal(t, "q1", deliveries[0].Message.QueryID)
	assert.Equal(t, "q2", deliveries[1].Message.QueryID)
}

func TestQueue_MalformedMessageBecomesEmpty(t *testing.T) {
	s, q := newTestQueue(t)
	ctx := context.Background()

	_, err := s.Lpush("test:jobs:pending", "not json")
	require.NoError(t, err)

	deliveries, err := q.Receive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Empty(t, deliveries[0].Message.QueryID)
	assert.Equal(t, "not json", deliveries[0].Receipt)
}
