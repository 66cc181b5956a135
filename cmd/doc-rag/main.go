package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	appcli "github.com/jinford/doc-rag/internal/app/cli"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "doc-rag",
		Usage: "ドキュメントディレクトリを対象とした RAG 質問応答システム",
		Commands: []*cli.Command{
			{
				Name:  "ingest",
				Usage: "ドキュメントを読み込み、新しいチャンクのみインデックスに追加",
				Flags: []cli.Flag{
					envFlag(),
					&cli.BoolFlag{
						Name:  "reset",
						Usage: "取り込み前に永続化済みインデックスを消去",
					},
					&cli.StringFlag{
						Name:  "data-dir",
						Usage: "ドキュメントディレクトリ（省略時は DATA_DIR）",
					},
				},
				Action: appcli.IngestAction,
			},
			{
				Name:      "query",
				Usage:     "質問に回答する",
				ArgsUsage: "<質問文>",
				Flags: []cli.Flag{
					envFlag(),
					&cli.IntFlag{
						Name:  "k",
						Usage: "取得するチャンク数（省略時は RETRIEVAL_K）",
					},
					&cli.StringFlag{
						Name:  "strategy",
						Usage: "検索戦略（similarity または mmr）",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "結果をJSONで出力",
					},
				},
				Action: appcli.QueryAction,
			},
			{
				Name:  "job",
				Usage: "非同期クエリジョブのコマンド",
				Commands: []*cli.Command{
					{
						Name:      "submit",
						Usage:     "ジョブを投入",
						ArgsUsage: "<質問文>",
						Flags:     []cli.Flag{envFlag()},
						Action:    appcli.JobSubmitAction,
					},
					{
						Name:  "process",
						Usage: "ジョブペイロード（単一メッセージまたは Records バッチ）を処理",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "file",
								Usage:    "ペイロードファイル（- で標準入力）",
								Required: true,
							},
						},
						Action: appcli.JobProcessAction,
					},
					{
						Name:   "worker",
						Usage:  "キューを消費するワーカーを起動",
						Flags:  []cli.Flag{envFlag()},
						Action: appcli.JobWorkerAction,
					},
					{
						Name:  "show",
						Usage: "ジョブの状態を表示",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "id",
								Usage:    "query_id",
								Required: true,
							},
						},
						Action: appcli.JobShowAction,
					},
				},
			},
			{
				Name:  "server",
				Usage: "サーバ関連コマンド",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "HTTPサーバを起動",
						Flags: []cli.Flag{
							envFlag(),
							&cli.IntFlag{
								Name:  "port",
								Usage: "HTTPポート（省略時は HTTP_PORT またはデフォルトの8080）",
								Value: 8080,
							},
						},
						Action: appcli.ServerStartAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
