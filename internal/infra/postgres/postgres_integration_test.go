//go:build integration

package postgres

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/doc-rag/internal/core/ingestion"
	"github.com/jinford/doc-rag/internal/core/job"
	"github.com/jinford/doc-rag/internal/core/search"
	"github.com/jinford/doc-rag/internal/platform/database"
)

const testDimension = 3

// startPostgres は pgvector 入りの PostgreSQL コンテナを起動してスキーマを作成する
// go test -tags=integration を実行した場合のみ実行される
func startPostgres(t *testing.T) *database.Database {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("Skipping integration test: docker not available: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("Skipping integration test: docker not reachable: %v", err)
	}
	pool.MaxWait = 2 * time.Minute

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "pgvector/pgvector",
		Tag:        "pg16",
		Env: []string{
			"POSTGRES_USER=docrag",
			"POSTGRES_PASSWORD=docrag",
			"POSTGRES_DB=docrag",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Purge(resource) })
	_ = resource.Expire(180)

	port, err := strconv.Atoi(resource.GetPort("5432/tcp"))
	require.NoError(t, err)
	params := database.ConnectionParams{
		Host:     "localhost",
		Port:     port,
		User:     "docrag",
		Password: "docrag",
		DBName:   "docrag",
		SSLMode:  "disable",
	}

	var db *database.Database
	err = pool.Retry(func() error {
		var connErr error
		db, connErr = database.New(context.Background(), params)
		return connErr
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, EnsureSchema(context.Background(), db.Pool, SchemaOptions{Dimension: testDimension, HNSWIndex: true}))
	return db
}

func TestVectorStore_Integration(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	store := NewVectorStore(db.Pool, testDimension)

	err := store.Add(ctx, []ingestion.Entry{
		{ID: "a.pdf:0:0", Text: "alpha", Embedding: []float32{1, 0, 0}, Metadata: map[string]any{"source": "a.pdf"}},
		{ID: "a.pdf:0:1", Text: "beta", Embedding: []float32{0, 1, 0}},
		{ID: "b.pdf:0:0", Text: "gamma", Embedding: []float32{0.9, 0.1, 0}},
	})
	require.NoError(t, err)
	require.NoError(t, store.Persist(ctx))

	ids, err := store.ExistingIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.Contains(t, ids, "b.pdf:0:0")

	matches, err := store.SimilaritySearch(ctx, []float32{1, 0, 0}, search.SearchOptions{K: 2})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a.pdf:0:0", matches[0].ID)
	assert.Equal(t, "b.pdf:0:0", matches[1].ID)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
	assert.Equal(t, "a.pdf", matches[0].Metadata["source"])

	mmr, err := store.SimilaritySearch(ctx, []float32{1, 0, 0}, search.SearchOptions{K: 2, FetchK: 3, Lambda: 0.3, Strategy: search.StrategyMMR})
	require.NoError(t, err)
	require.Len(t, mmr, 2)
	assert.ElementsMatch(t, []string{"a.pdf:0:0", "a.pdf:0:1"}, []string{mmr[0].ID, mmr[1].ID})

	// 同じIDの再投入は上書きになる
	require.NoError(t, store.Add(ctx, []ingestion.Entry{{ID: "a.pdf:0:1", Text: "beta v2", Embedding: []float32{0, 1, 0}}}))
	ids, err = store.ExistingIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	require.NoError(t, store.Reset(ctx))
	ids, err = store.ExistingIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestJobStore_Integration(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	store := NewJobStore(db.Pool)

	got, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.True(t, got.IsAbsent())

	now := time.Now().UTC().Truncate(time.Millisecond)
	pending := &job.Job{QueryID: "q1", QueryText: "what?", Status: job.StatusPending, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.Put(ctx, pending))

	done := *pending
	done.Status = job.StatusSucceeded
	done.Answer = "because"
	done.Sources = []string{"a.pdf:0:0"}
	require.NoError(t, store.Put(ctx, &done))

	got, err = store.Get(ctx, "q1")
	require.NoError(t, err)
	stored, ok := got.Get()
	require.True(t, ok)
	assert.Equal(t, job.StatusSucceeded, stored.Status)
	assert.Equal(t, "because", stored.Answer)
	assert.Equal(t, []string{"a.pdf:0:0"}, stored.Sources)
	assert.Empty(t, stored.Error)

	// 終端状態は上書きしない
	failed := *pending
	failed.Status = job.StatusFailed
	failed.Error = "internal error"
	err = store.Put(ctx, &failed)
	require.True(t, errors.Is(err, job.ErrTerminalState))

	got, err = store.Get(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusSucceeded, got.MustGet().Status)

	// ソースなしで成功したジョブも sources は空リストとして返る
	empty := &job.Job{QueryID: "q2", QueryText: "who?", Status: job.StatusSucceeded, Answer: "nobody", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.Put(ctx, empty))
	got, err = store.Get(ctx, "q2")
	require.NoError(t, err)
	assert.NotNil(t, got.MustGet().Sources)
	assert.Empty(t, got.MustGet().Sources)
}
