package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jinford/doc-rag/internal/core/ask"
	"github.com/jinford/doc-rag/internal/core/search"
)

// Asker は質問応答のインターフェース
type Asker interface {
	Ask(ctx context.Context, params ask.AskParams) (*ask.AskResult, error)
}

// QueryAction は質問に回答するコマンドのアクション
func QueryAction(ctx context.Context, cmd *cli.Command) error {
	question := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(question) == "" {
		return errors.New("質問文を指定してください")
	}

	var strategy search.Strategy
	if s := cmd.String("strategy"); s != "" {
		parsed, err := search.ParseStrategy(s)
		if err != nil {
			return err
		}
		strategy = parsed
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	return runQuery(ctx, appCtx.Container.AskService, ask.AskParams{
		Query:    question,
		K:        int(cmd.Int("k")),
		Strategy: strategy,
	}, writer(cmd), cmd.Bool("json"))
}

func runQuery(ctx context.Context, asker Asker, params ask.AskParams, w io.Writer, asJSON bool) error {
	result, err := asker.Ask(ctx, params)
	if err != nil {
		var ve *ask.ValidationError
		if errors.As(err, &ve) {
			return errors.New(ask.PublicMessage(err))
		}
		return fmt.Errorf("質問応答に失敗しました: %w", err)
	}

	if asJSON {
		return writeJSON(w, result)
	}
	_, err = fmt.Fprintf(w, "Response: %s\nSources: [%s]\n", result.Answer, strings.Join(result.Sources, ", "))
	return err
}
