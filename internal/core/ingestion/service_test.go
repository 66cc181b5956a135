package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLoader struct {
	docs []*Document
	err  error
}

func (l *stubLoader) Load(ctx context.Context, dir string) ([]*Document, error) {
	return l.docs, l.err
}

// lineSplitter は改行区切りで分割する
type lineSplitter struct{}

func (lineSplitter) Split(text string) ([]string, error) {
	return strings.Split(text, "\n"), nil
}

func sampleDocs() []*Document {
	return []*Document{
		{Source: "data/a.pdf", Pages: []Page{
			{Number: 0, Text: "one\ntwo"},
			{Number: 1, Text: "three\n   \nfour"},
		}},
		{Source: "data/b.md", Pages: []Page{{Number: 0, Text: "five"}}},
	}
}

func TestSplitDocuments_PreservesOrderAndSkipsBlank(t *testing.T) {
	chunks, err := SplitDocuments(sampleDocs(), lineSplitter{})
	require.NoError(t, err)

	AssignChunkIDs(chunks)
	assert.Equal(t, []string{
		"data/a.pdf:0:0",
		"data/a.pdf:0:1",
		"data/a.pdf:1:0",
		"data/a.pdf:1:1",
		"data/b.md:0:0",
	}, chunkIDs(chunks))
	assert.Equal(t, "four", chunks[3].Text)
}

func TestIngestService_IngestIsIdempotent(t *testing.T) {
	index := newStubIndex()
	embedder := &stubEmbedder{maxBatch: 100}
	var observed int
	svc := NewIngestService(&stubLoader{docs: sampleDocs()}, lineSplitter{}, index, embedder,
		WithIngestLogger(discardLogger()),
		WithIngestObserver(func(added int) { observed += added }),
	)

	first, err := svc.Ingest(context.Background(), IngestParams{DataDir: "data"})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Documents)
	assert.Equal(t, 5, first.TotalChunks)
	assert.Equal(t, 5, first.AddedChunks)

	second, err := svc.Ingest(context.Background(), IngestParams{DataDir: "data"})
	require.NoError(t, err)
	assert.Equal(t, 0, second.AddedChunks)
	assert.Equal(t, 5, second.ExistingChunks)

	assert.Len(t, index.entries, 5)
	assert.Equal(t, 5, observed)
	assert.Equal(t, 0, index.resetCalls)
}

func TestIngestService_ResetClearsIndexFirst(t *testing.T) {
	index := newStubIndex("stale:0:0")
	embedder := &stubEmbedder{maxBatch: 100}
	svc := NewIngestService(&stubLoader{docs: sampleDocs()}, lineSplitter{}, index, embedder,
		WithIngestLogger(discardLogger()),
	)

	result, err := svc.Ingest(context.Background(), IngestParams{DataDir: "data", Reset: true})
	require.NoError(t, err)

	assert.Equal(t, 1, index.resetCalls)
	assert.Equal(t, 5, result.AddedChunks)
	assert.NotContains(t, index.entries, "stale:0:0")
}

func TestIngestService_PropagatesIndexWriteError(t *testing.T) {
	index := newStubIndex()
	index.persistErr = errors.New("permission denied")
	svc := NewIngestService(&stubLoader{docs: sampleDocs()}, lineSplitter{}, index, &stubEmbedder{maxBatch: 100},
		WithIngestLogger(discardLogger()),
	)

	_, err := svc.Ingest(context.Background(), IngestParams{DataDir: "data"})
	require.ErrorIs(t, err, ErrIndexWrite)
}

func TestIngestService_LoaderError(t *testing.T) {
	svc := NewIngestService(&stubLoader{err: errors.New("no such dir")}, lineSplitter{}, newStubIndex(), &stubEmbedder{maxBatch: 100},
		WithIngestLogger(discardLogger()),
	)

	_, err := svc.Ingest(context.Background(), IngestParams{DataDir: "missing"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrIndexWrite)
}

func TestIngestService_RequiresDataDir(t *testing.T) {
	svc := NewIngestService(&stubLoader{}, lineSplitter{}, newStubIndex(), &stubEmbedder{maxBatch: 100},
		WithIngestLogger(discardLogger()),
	)

	_, err := svc.Ingest(context.Background(), IngestParams{})
	require.Error(t, err)
}
