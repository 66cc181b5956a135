package localindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/doc-rag/internal/core/ingestion"
	"github.com/jinford/doc-rag/internal/core/search"
)

func entry(id string, vec ...float32) ingestion.Entry {
	return ingestion.Entry{ID: id, Text: "text " + id, Embedding: vec, Metadata: map[string]any{"id": id}}
}

func TestStore_PersistAndReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := Open(dir, 2)
	require.NoError(t, err)
	require.NoError(t, store.Add(ctx, []ingestion.Entry{entry("a", 1, 0), entry("b", 0, 1)}))

	// Persist 前は別インスタンスから見えない
	before, err := Open(dir, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, before.Count())

	require.NoError(t, store.Persist(ctx))
	_, err = os.Stat(filepath.Join(dir, DefaultFileName+".tmp"))
	assert.True(t, os.IsNotExist(err))

	reopened, err := Open(dir, 2)
	require.NoError(t, err)
	ids, err := reopened.ExistingIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"a": {}, "b": {}}, ids)
}

func TestStore_AddUpsertsByID(t *testing.T) {
	store, err := Open(t.TempDir(), 0)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, []ingestion.Entry{entry("a", 1, 0)}))
	require.NoError(t, store.Add(ctx, []ingestion.Entry{entry("a", 0, 1)}))

	assert.Equal(t, 1, store.Count())
	err = store.Add(ctx, []ingestion.Entry{entry("c", 1, 0, 0)})
	require.Error(t, err)
}

func TestStore_Reset(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store, err := Open(dir, 2)
	require.NoError(t, err)
	require.NoError(t, store.Add(ctx, []ingestion.Entry{entry("a", 1, 0)}))
	require.NoError(t, store.Persist(ctx))

	require.NoError(t, store.Reset(ctx))
	assert.Equal(t, 0, store.Count())
	_, err = os.Stat(store.Path())
	assert.True(t, os.IsNotExist(err))

	// 2回目の Reset もエラーにならない
	require.NoError(t, store.Reset(ctx))
}

func TestStore_SimilaritySearch(t *testing.T) {
	store, err := Open(t.TempDir(), 2)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, []ingestion.Entry{
		entry("near", 1, 0.1),
		entry("mid", 1, 1),
		entry("far", 0, 1),
	}))

	matches, err := store.SimilaritySearch(ctx, []float32{1, 0}, search.SearchOptions{K: 2, Strategy: search.StrategySimilarity})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "near", matches[0].ID)
	assert.Equal(t, "mid", matches[1].ID)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)

	all, err := store.SimilaritySearch(ctx, []float32{1, 0}, search.SearchOptions{K: 10})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_SimilaritySearchMMR(t *testing.T) {
	store, err := Open(t.TempDir(), 2)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, []ingestion.Entry{
		entry("a", 1, 0),
		entry("a-dup", 0.99, 0.01),
		entry("b", 0.7, 0.7),
	}))

	matches, err := store.SimilaritySearch(ctx, []float32{1, 0}, search.SearchOptions{
		K: 2, FetchK: 3, Lambda: 0.3, Strategy: search.StrategyMMR,
	})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID)
	assert.Equal(t, "b", matches[1].ID)
}

func TestStore_SearchEmptyIndex(t *testing.T) {
	store, err := Open(t.TempDir(), 2)
	require.NoError(t, err)

	matches, err := store.SimilaritySearch(context.Background(), []float32{1, 0}, search.SearchOptions{K: 5})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestOpen_RejectsDimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store, err := Open(dir, 2)
	require.NoError(t, err)
	require.NoError(t, store.Add(ctx, []ingestion.Entry{entry("a", 1, 0)}))
	require.NoError(t, store.Persist(ctx))

	_, err = Open(dir, 3)
	require.Error(t, err)
}

func TestStore_ReloadsSnapshotPersistedElsewhere(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	reader, err := Open(dir, 2)
	require.NoError(t, err)
	matches, err := reader.SimilaritySearch(ctx, []float32{1, 0}, search.SearchOptions{K: 5})
	require.NoError(t, err)
	assert.Empty(t, matches)

	writer, err := Open(dir, 2)
	require.NoError(t, err)
	require.NoError(t, writer.Add(ctx, []ingestion.Entry{entry("a", 1, 0)}))
	require.NoError(t, writer.Persist(ctx))

	matches, err = reader.SimilaritySearch(ctx, []float32{1, 0}, search.SearchOptions{K: 5})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].ID)

	ids, err := reader.ExistingIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"a": {}}, ids)

	// 別プロセスでの Reset も反映される
	require.NoError(t, writer.Reset(ctx))
	ids, err = reader.ExistingIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestStore_KeepsUnpersistedEntriesOnReload(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	local, err := Open(dir, 2)
	require.NoError(t, err)
	require.NoError(t, local.Add(ctx, []ingestion.Entry{entry("mine", 0, 1)}))

	other, err := Open(dir, 2)
	require.NoError(t, err)
	require.NoError(t, other.Add(ctx, []ingestion.Entry{entry("theirs", 1, 0)}))
	require.NoError(t, other.Persist(ctx))

	ids, err := local.ExistingIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"mine": {}}, ids)
}
