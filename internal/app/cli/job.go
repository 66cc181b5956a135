package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/jinford/doc-rag/internal/core/job"
)

// BatchProcessor はジョブメッセージを処理するインターフェース
type BatchProcessor interface {
	Process(ctx context.Context, msg job.Message) job.Summary
	ProcessBatch(ctx context.Context, msgs []job.Message) job.BatchResult
}

// JobSubmitAction はジョブを投入するコマンドのアクション
func JobSubmitAction(ctx context.Context, cmd *cli.Command) error {
	question := cmd.Args().First()
	if question == "" {
		return errors.New("質問文を指定してください")
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	submitted, err := appCtx.Container.JobManager.Submit(ctx, question)
	if err != nil {
		return fmt.Errorf("ジョブの投入に失敗しました: %w", err)
	}
	return writeJSON(writer(cmd), map[string]any{
		"query_id": submitted.QueryID,
		"status":   submitted.Status,
	})
}

// JobShowAction はジョブの状態を表示するコマンドのアクション
func JobShowAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	id := cmd.String("id")
	found, err := appCtx.Container.JobManager.Get(ctx, id)
	if err != nil {
		return err
	}
	stored, ok := found.Get()
	if !ok {
		return fmt.Errorf("ジョブが見つかりません: %s", id)
	}
	return writeJSON(writer(cmd), stored)
}

// JobProcessAction はファイルまたは標準入力のジョブペイロードを処理するコマンドのアクション
func JobProcessAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("file")
	var in io.Reader
	if path == "-" {
		in = reader(cmd)
	} else {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("ペイロードファイルを開けません: %w", err)
		}
		defer f.Close()
		in = f
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	return runJobProcess(ctx, appCtx.Container.JobManager, in, writer(cmd))
}

func runJobProcess(ctx context.Context, processor BatchProcessor, in io.Reader, w io.Writer) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("ペイロードの読み込みに失敗しました: %w", err)
	}
	msgs, isBatch, err := job.DecodePayload(data)
	if err != nil {
		return err
	}

	if isBatch {
		return writeJSON(w, processor.ProcessBatch(ctx, msgs))
	}
	return writeJSON(w, processor.Process(ctx, msgs[0]))
}

// JobWorkerAction はキューを消費するワーカーを起動するコマンドのアクション
func JobWorkerAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	worker, err := appCtx.Container.NewWorker()
	if err != nil {
		return err
	}

	if pending, processing, err := appCtx.Container.Queue.Len(ctx); err == nil {
		appCtx.Logger().Info("starting job worker", "pending", pending, "processing", processing)
	}
	return worker.Run(ctx)
}
