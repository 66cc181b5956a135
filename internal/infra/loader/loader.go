package loader

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/jinford/doc-rag/internal/core/ingestion"
)

// DirectoryLoader はディレクトリ配下のドキュメントを読み込む
// 対応形式: .pdf（ページ単位）、.txt / .md（全体を1ページとして扱う）
type DirectoryLoader struct {
	logger *slog.Logger
}

// Option は DirectoryLoader のオプション設定
type Option func(*DirectoryLoader)

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(l *DirectoryLoader) {
		l.logger = logger
	}
}

// New は新しい DirectoryLoader を作成する
func New(opts ...Option) *DirectoryLoader {
	l := &DirectoryLoader{logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Load はディレクトリを辞書順に走査してドキュメントを読み込む
// 同じディレクトリ内容からは常に同じ順序のドキュメント列が得られる
func (l *DirectoryLoader) Load(ctx context.Context, dir string) ([]*ingestion.Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat data dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data dir is not a directory: %s", dir)
	}

	var documents []*ingestion.Document
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		var doc *ingestion.Document
		switch strings.ToLower(filepath.Ext(path)) {
		case ".pdf":
			doc, err = loadPDF(path)
		case ".txt", ".md":
			doc, err = loadText(path)
		default:
			return nil
		}
		if err != nil {
			return err
		}

		l.logger.Debug("loaded document", "source", doc.Source, "pages", len(doc.Pages))
		documents = append(documents, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}

	return documents, nil
}

// loadPDF はPDFをページ単位で読み込む（ページ番号は0始まり）
func loadPDF(path string) (*ingestion.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader for %s: %w", path, err)
	}

	doc := &ingestion.Document{Source: filepath.ToSlash(path)}
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from %s page %d: %w", path, i, err)
		}

		doc.Pages = append(doc.Pages, ingestion.Page{Number: i - 1, Text: text})
	}

	return doc, nil
}

func loadText(path string) (*ingestion.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return &ingestion.Document{
		Source: filepath.ToSlash(path),
		Pages:  []ingestion.Page{{Number: 0, Text: string(data)}},
	}, nil
}

// インターフェース実装の確認
var _ ingestion.DocumentLoader = (*DirectoryLoader)(nil)
