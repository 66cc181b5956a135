package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/jinford/doc-rag/internal/core/ingestion"
)

// Ingester はインジェスト処理のインターフェース
type Ingester interface {
	Ingest(ctx context.Context, params ingestion.IngestParams) (*ingestion.IngestResult, error)
}

// IngestAction はドキュメントをインデックスに取り込むコマンドのアクション
func IngestAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	dataDir := cmd.String("data-dir")
	if dataDir == "" {
		dataDir = appCtx.Config.DataDir
	}

	return runIngest(ctx, appCtx.Container.IngestService, ingestion.IngestParams{
		DataDir: dataDir,
		Reset:   cmd.Bool("reset"),
	}, writer(cmd))
}

func runIngest(ctx context.Context, ingester Ingester, params ingestion.IngestParams, w io.Writer) error {
	result, err := ingester.Ingest(ctx, params)
	if err != nil {
		return fmt.Errorf("インジェストに失敗しました: %w", err)
	}

	if result.AddedChunks == 0 {
		_, err = fmt.Fprintf(w, "No new documents to add (%d chunks already indexed)\n", result.ExistingChunks)
		return err
	}
	_, err = fmt.Fprintf(w, "Added %d new chunks from %d documents (%d already indexed) in %s\n",
		result.AddedChunks, result.Documents, result.ExistingChunks, result.Duration.Round(1e6))
	return err
}
