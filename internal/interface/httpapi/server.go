package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/mo"

	"github.com/jinford/doc-rag/internal/core/ask"
	"github.com/jinford/doc-rag/internal/core/job"
)

const shutdownTimeout = 10 * time.Second

// Asker は同期の質問応答インターフェース
type Asker interface {
	Ask(ctx context.Context, params ask.AskParams) (*ask.AskResult, error)
}

// JobService は非同期ジョブの投入と参照のインターフェース
type JobService interface {
	Submit(ctx context.Context, queryText string) (*job.Job, error)
	Get(ctx context.Context, queryID string) (mo.Option[*job.Job], error)
}

// Metrics はHTTPで公開するメトリクスのインターフェース
type Metrics interface {
	Handler() http.Handler
	GinMiddleware() gin.HandlerFunc
}

// Server はHTTPインターフェースを提供する
type Server struct {
	asker          Asker
	jobs           JobService
	metrics        Metrics
	allowedOrigins []string
	logger         *slog.Logger
	engine         *gin.Engine
}

// ServerOption は Server のオプション設定
type ServerOption func(*Server)

// WithServerLogger はロガーを設定する
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithJobService は非同期ジョブのエンドポイントを有効にする
func WithJobService(jobs JobService) ServerOption {
	return func(s *Server) {
		s.jobs = jobs
	}
}

// WithMetrics は /metrics とリクエスト計測を有効にする
func WithMetrics(m Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithAllowedOrigins はCORSで許可するオリジンを設定する（"*" ですべて許可）
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// NewServer は新しい Server を作成する
func NewServer(asker Asker, opts ...ServerOption) *Server {
	s := &Server{
		asker:          asker,
		allowedOrigins: []string{"*"},
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.engine = s.routes()
	return s
}

// Handler はルーティング済みのハンドラーを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger), corsMiddleware(s.allowedOrigins))
	if s.metrics != nil {
		r.Use(s.metrics.GinMiddleware())
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	r.GET("/health", s.health)
	r.POST("/submit_query", s.submitQuery)
	if s.jobs != nil {
		r.POST("/jobs", s.submitJob)
		r.GET("/jobs/:id", s.getJob)
	}
	return r
}

// Run はHTTPサーバーを起動し、ctx がキャンセルされるとグレースフルに停止する
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}
	return nil
}
