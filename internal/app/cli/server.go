package cli

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/jinford/doc-rag/internal/interface/httpapi"
)

// ServerStartAction はHTTPサーバを起動するコマンドのアクション
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	port := appCtx.Config.Server.Port
	if cmd.IsSet("port") {
		port = int(cmd.Int("port"))
	}

	c := appCtx.Container
	server := httpapi.NewServer(c.AskService,
		httpapi.WithServerLogger(appCtx.Logger()),
		httpapi.WithJobService(c.JobManager),
		httpapi.WithMetrics(c.Metrics),
		httpapi.WithAllowedOrigins(appCtx.Config.Server.AllowedOrigins),
	)
	return server.Run(ctx, port)
}
