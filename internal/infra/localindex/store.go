package localindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jinford/doc-rag/internal/core/ingestion"
	"github.com/jinford/doc-rag/internal/core/search"
)

// DefaultFileName はインデックスディレクトリ内のスナップショットファイル名
const DefaultFileName = "index.json"

// Store はJSONファイルに永続化するローカルベクトルインデックス
//
// Add はメモリ上にのみ反映し、Persist でファイルへ書き出す。
// 書き出しは一時ファイルへの書き込みとリネームで行い、途中状態のファイルを残さない。
// 検索時にスナップショットが別プロセスで更新されていれば読み直す。
// 未書き出しの Add がある間は読み直さない。
type Store struct {
	mu        sync.RWMutex
	path      string
	dimension int
	records   map[string]record
	stamp     fileStamp
	dirty     bool
}

// fileStamp は読み込んだスナップショットの更新時刻とサイズ
type fileStamp struct {
	modTime time.Time
	size    int64
}

func (f fileStamp) equal(o fileStamp) bool {
	return f.size == o.size && f.modTime.Equal(o.modTime)
}

type record struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  map[string]any
}

// Open はディレクトリ内のスナップショットを読み込んで Store を作成する
// スナップショットがなければ空のインデックスとして開く
// dimension が0の場合は最初に追加されたベクトルの次元を採用する
func Open(dir string, dimension int) (*Store, error) {
	if dir == "" {
		return nil, errors.New("localindex: directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("localindex: ensure directory %q: %w", dir, err)
	}
	s := &Store{
		path:      filepath.Join(filepath.Clean(dir), DefaultFileName),
		dimension: dimension,
		records:   make(map[string]record),
	}
	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path はスナップショットファイルのパスを返す
func (s *Store) Path() string {
	return s.path
}

// Count は登録済みのエントリ数を返す
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// ExistingIDs は登録済みのID集合を返す（ベクトルや本文は返さない）
func (s *Store) ExistingIDs(_ context.Context) (map[string]struct{}, error) {
	if err := s.refresh(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make(map[string]struct{}, len(s.records))
	for id := range s.records {
		ids[id] = struct{}{}
	}
	return ids, nil
}

// Add はエントリをIDキーでupsertする
func (s *Store) Add(_ context.Context, entries []ingestion.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if e.ID == "" {
			return errors.New("localindex: entry id is required")
		}
		if s.dimension == 0 {
			s.dimension = len(e.Embedding)
		}
		if len(e.Embedding) != s.dimension {
			return fmt.Errorf("localindex: entry %q dimension mismatch (got %d want %d)", e.ID, len(e.Embedding), s.dimension)
		}
		s.records[e.ID] = record{
			ID:        e.ID,
			Text:      e.Text,
			Embedding: append([]float32(nil), e.Embedding...),
			Metadata:  maps.Clone(e.Metadata),
		}
		s.dirty = true
	}
	return nil
}

// Persist はメモリ上のインデックスをファイルへ書き出す
func (s *Store) Persist(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// Reset はメモリ上のインデックスとスナップショットファイルを消去する
func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]record)
	s.stamp = fileStamp{}
	s.dirty = false
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("localindex: remove %q: %w", s.path, err)
	}
	return nil
}

// SimilaritySearch はコサイン類似度でエントリを検索する
func (s *Store) SimilaritySearch(_ context.Context, vector []float32, opts search.SearchOptions) ([]*search.Match, error) {
	if err := s.refresh(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return []*search.Match{}, nil
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("localindex: query dimension mismatch (got %d want %d)", len(vector), s.dimension)
	}

	k := opts.K
	if k <= 0 {
		k = search.DefaultK
	}

	candidates := make([]search.Candidate, 0, len(s.records))
	for _, rec := range s.records {
		candidates = append(candidates, search.Candidate{
			Match: &search.Match{
				ID:       rec.ID,
				Text:     rec.Text,
				Metadata: maps.Clone(rec.Metadata),
				Score:    search.CosineSimilarity(vector, rec.Embedding),
			},
			Embedding: rec.Embedding,
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i].Match, candidates[j].Match
		if a.Score == b.Score {
			return a.ID < b.ID
		}
		return a.Score > b.Score
	})

	if opts.Strategy == search.StrategyMMR {
		fetchK := max(opts.FetchK, k)
		if len(candidates) > fetchK {
			candidates = candidates[:fetchK]
		}
		return search.SelectMMR(vector, candidates, k, opts.Lambda), nil
	}

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	matches := make([]*search.Match, len(candidates))
	for i, c := range candidates {
		matches[i] = c.Match
	}
	return matches, nil
}

// refresh はスナップショットが読み込み時から変わっていれば読み直す
func (s *Store) refresh() error {
	current, err := s.statFile()
	if err != nil {
		return err
	}

	s.mu.RLock()
	fresh := s.dirty || s.stamp.equal(current)
	s.mu.RUnlock()
	if fresh {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirty || s.stamp.equal(current) {
		return nil
	}
	return s.loadLocked()
}

func (s *Store) statFile() (fileStamp, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return fileStamp{}, nil
	}
	if err != nil {
		return fileStamp{}, fmt.Errorf("localindex: stat %q: %w", s.path, err)
	}
	return fileStamp{modTime: info.ModTime(), size: info.Size()}, nil
}

// loadLocked はスナップショットを読み込んでメモリ上のエントリを置き換える
func (s *Store) loadLocked() error {
	stamp, err := s.statFile()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.records = make(map[string]record)
		s.stamp = fileStamp{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("localindex: read %q: %w", s.path, err)
	}
	var payload snapshot
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("localindex: decode %q: %w", s.path, err)
	}
	if s.dimension > 0 && payload.Dimension > 0 && s.dimension != payload.Dimension {
		return fmt.Errorf("localindex: stored dimension %d does not match config %d for %q", payload.Dimension, s.dimension, s.path)
	}
	if payload.Dimension > 0 {
		s.dimension = payload.Dimension
	}
	records := make(map[string]record, len(payload.Records))
	for _, rec := range payload.Records {
		records[rec.ID] = record{
			ID:        rec.ID,
			Text:      rec.Text,
			Embedding: rec.Embedding,
			Metadata:  rec.Metadata,
		}
	}
	s.records = records
	s.stamp = stamp
	return nil
}

func (s *Store) persistLocked() error {
	payload := snapshot{
		Dimension: s.dimension,
		Records:   make([]snapshotRecord, 0, len(s.records)),
	}
	for _, rec := range s.records {
		payload.Records = append(payload.Records, snapshotRecord(rec))
	}
	sort.Slice(payload.Records, func(i, j int) bool {
		return payload.Records[i].ID < payload.Records[j].ID
	})

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("localindex: encode snapshot: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("localindex: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("localindex: commit snapshot: %w", err)
	}
	stamp, err := s.statFile()
	if err != nil {
		return err
	}
	s.stamp = stamp
	s.dirty = false
	return nil
}

type snapshot struct {
	Dimension int              `json:"dimension"`
	Records   []snapshotRecord `json:"records"`
}

type snapshotRecord struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// インターフェース実装の確認
var (
	_ ingestion.Index = (*Store)(nil)
	_ search.Index    = (*Store)(nil)
)
