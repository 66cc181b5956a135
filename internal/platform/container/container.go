package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	coreask "github.com/jinford/doc-rag/internal/core/ask"
	coreingestion "github.com/jinford/doc-rag/internal/core/ingestion"
	corejob "github.com/jinford/doc-rag/internal/core/job"
	coresearch "github.com/jinford/doc-rag/internal/core/search"
	"github.com/jinford/doc-rag/internal/infra/embedding"
	"github.com/jinford/doc-rag/internal/infra/loader"
	"github.com/jinford/doc-rag/internal/infra/localindex"
	"github.com/jinford/doc-rag/internal/infra/ollama"
	"github.com/jinford/doc-rag/internal/infra/openai"
	"github.com/jinford/doc-rag/internal/infra/postgres"
	redisinfra "github.com/jinford/doc-rag/internal/infra/redis"
	"github.com/jinford/doc-rag/internal/infra/splitter"
	"github.com/jinford/doc-rag/internal/infra/tokenizer"
	"github.com/jinford/doc-rag/internal/platform/config"
	"github.com/jinford/doc-rag/internal/platform/database"
	"github.com/jinford/doc-rag/internal/platform/metrics"
)

// ErrQueueNotConfigured はジョブキューが設定されていない場合のエラー
var ErrQueueNotConfigured = errors.New("job queue is not configured: set REDIS_URL")

// Embedder はインジェストと検索の両方で使うEmbedding生成インターフェース
type Embedder interface {
	coreingestion.Embedder
	coresearch.Embedder
}

// VectorIndex はインジェストと検索の両方で使うベクトルインデックス
type VectorIndex interface {
	coreingestion.Index
	coresearch.Index
}

// ServiceContainer はアプリケーションの依存関係を保持する。
// 起動時に一度だけ構築し、終了時に Close で接続を解放する。
type ServiceContainer struct {
	IngestService *coreingestion.IngestService
	Retriever     *coresearch.Retriever
	AskService    *coreask.AskService
	JobManager    *corejob.Manager
	JobStore      corejob.Store
	Queue         *redisinfra.Queue // REDIS_URL 未設定の場合は nil
	Metrics       *metrics.Metrics

	config   *config.Config
	logger   *slog.Logger
	database *database.Database
	redis    goredis.UniversalClient
	ownRedis bool
}

type containerOptions struct {
	logger      *slog.Logger
	embedder    Embedder
	llm         coreask.GenerationBackend
	index       VectorIndex
	redisClient goredis.UniversalClient
	metrics     *metrics.Metrics
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerEmbedder はカスタム Embedder を注入する
func WithContainerEmbedder(embedder Embedder) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithContainerGenerationBackend は回答生成バックエンドを差し替える
func WithContainerGenerationBackend(llm coreask.GenerationBackend) ContainerOption {
	return func(opts *containerOptions) {
		opts.llm = llm
	}
}

// WithContainerIndex はベクトルインデックスを差し替える
func WithContainerIndex(index VectorIndex) ContainerOption {
	return func(opts *containerOptions) {
		opts.index = index
	}
}

// WithContainerRedisClient は Redis クライアントを注入する（Close はしない）
func WithContainerRedisClient(client goredis.UniversalClient) ContainerOption {
	return func(opts *containerOptions) {
		opts.redisClient = client
	}
}

// WithContainerMetrics はメトリクスを差し替える
func WithContainerMetrics(m *metrics.Metrics) ContainerOption {
	return func(opts *containerOptions) {
		opts.metrics = m
	}
}

// NewContainer は設定からコンテナを生成する。
// PostgreSQL を使う構成の場合のみ接続し、スキーマを作成する。
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	if !cfg.UsesDatabase() {
		return NewContainerWithDB(cfg, nil, opts...)
	}

	db, err := database.New(ctx, database.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
	}

	if err := postgres.EnsureSchema(ctx, db.Pool, postgres.SchemaOptions{
		Dimension: cfg.Embedding.Dimension,
		HNSWIndex: cfg.Index.HNSWIndex,
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("スキーマ作成に失敗しました: %w", err)
	}

	c, err := NewContainerWithDB(cfg, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// NewContainerWithDB は既存の Database を受け取りコンテナを生成する。
// PostgreSQL を使わない構成では db は nil でよい。
func NewContainerWithDB(cfg *config.Config, db *database.Database, opts ...ContainerOption) (*ServiceContainer, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if cfg.UsesDatabase() && db == nil {
		return nil, errors.New("データベースが必要な構成ですが接続がありません")
	}

	m := options.metrics
	if m == nil {
		m = metrics.New()
	}

	// Embedder
	embedder := options.embedder
	if embedder == nil {
		var err error
		embedder, err = newEmbedder(cfg)
		if err != nil {
			return nil, fmt.Errorf("Embedder 初期化に失敗しました: %w", err)
		}
	}

	// ベクトルインデックス
	index := options.index
	if index == nil {
		var err error
		index, err = newIndex(cfg, db)
		if err != nil {
			return nil, fmt.Errorf("インデックス初期化に失敗しました: %w", err)
		}
	}

	// 回答生成バックエンド
	llm := options.llm
	if llm == nil {
		var err error
		llm, err = newGenerationBackend(cfg)
		if err != nil {
			return nil, fmt.Errorf("LLMクライアント初期化に失敗しました: %w", err)
		}
	}

	textSplitter, err := splitter.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return nil, fmt.Errorf("Splitter 初期化に失敗しました: %w", err)
	}

	// tiktoken の語彙ファイルを取得できない環境ではルーン数で代用する
	var counter coreask.TokenCounter = coreask.RuneCounter{}
	if tc, err := tokenizer.New(); err != nil {
		options.logger.Warn("tiktoken unavailable, falling back to rune counter", "error", err)
	} else {
		counter = tc
	}

	// IngestService
	ingestService := coreingestion.NewIngestService(
		loader.New(loader.WithLogger(options.logger)),
		textSplitter,
		index,
		embedder,
		coreingestion.WithIngestLogger(options.logger),
		coreingestion.WithIngestBatchSize(cfg.Embedding.BatchSize),
		coreingestion.WithIngestObserver(m.ChunksIngested),
	)

	// Retriever（クエリEmbeddingはLRUキャッシュを通す）
	var queryEmbedder coresearch.Embedder = embedder
	if cfg.Embedding.CacheSize > 0 {
		cached, err := embedding.NewCachedEmbedder(embedder, cfg.Embedding.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("Embeddingキャッシュ初期化に失敗しました: %w", err)
		}
		queryEmbedder = cached
	}
	strategy, err := coresearch.ParseStrategy(cfg.Retrieval.Strategy)
	if err != nil {
		return nil, err
	}
	retriever := coresearch.NewRetriever(
		index,
		queryEmbedder,
		coresearch.WithRetrieverLogger(options.logger),
		coresearch.WithDefaultStrategy(strategy),
		coresearch.WithDefaultK(cfg.Retrieval.K),
		coresearch.WithLambda(cfg.Retrieval.Lambda),
	)

	// AskService
	askService := coreask.NewAskService(
		retriever,
		llm,
		coreask.WithAskLogger(options.logger),
		coreask.WithQueryValidator(coreask.NewQueryValidator(cfg.Query.MaxLength)),
		coreask.WithContextBudget(coreask.ContextBudget{MaxTokens: cfg.Retrieval.MaxContextTokens, Counter: counter}),
		coreask.WithAskObserver(m.QueryObserved),
	)

	c := &ServiceContainer{
		IngestService: ingestService,
		Retriever:     retriever,
		AskService:    askService,
		Metrics:       m,
		config:        cfg,
		logger:        options.logger,
		database:      db,
	}

	// Redis（ジョブストアとキュー）
	c.redis = options.redisClient
	if c.redis == nil && cfg.Job.RedisURL != "" {
		redisOpts, err := goredis.ParseURL(cfg.Job.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("REDIS_URL の解析に失敗しました: %w", err)
		}
		c.redis = goredis.NewClient(redisOpts)
		c.ownRedis = true
	}
	if c.redis != nil {
		c.Queue = redisinfra.NewQueue(c.redis, cfg.Job.QueueKey, redisinfra.WithQueueLogger(options.logger))
	}

	switch cfg.Job.Store {
	case config.JobStorePostgres:
		c.JobStore = postgres.NewJobStore(db.Pool)
	default:
		if c.redis == nil {
			return nil, errors.New("Redis ジョブストアには REDIS_URL の設定が必要です")
		}
		c.JobStore = redisinfra.NewJobStore(c.redis, redisinfra.WithJobTTL(cfg.Job.TTL))
	}

	managerOpts := []corejob.ManagerOption{
		corejob.WithManagerLogger(options.logger),
		corejob.WithJobTimeout(cfg.Job.Timeout),
		corejob.WithObserver(m),
		corejob.WithValidator(askService),
	}
	if c.Queue != nil {
		managerOpts = append(managerOpts, corejob.WithQueue(c.Queue))
	}
	c.JobManager = corejob.NewManager(c.JobStore, askService, managerOpts...)

	return c, nil
}

// NewWorker はキューを消費するワーカーを生成する。
func (c *ServiceContainer) NewWorker() (*corejob.Worker, error) {
	if c.Queue == nil {
		return nil, ErrQueueNotConfigured
	}
	return corejob.NewWorker(
		c.JobManager,
		c.Queue,
		corejob.WithWorkerLogger(c.logger),
		corejob.WithBatchSize(c.config.Job.WorkerBatchSize),
	), nil
}

func newEmbedder(cfg *config.Config) (Embedder, error) {
	switch cfg.Embedding.Provider {
	case config.ProviderOpenAI:
		return openai.NewEmbedder(
			cfg.OpenAI.APIKey,
			openai.WithEmbeddingModel(cfg.Embedding.Model),
			openai.WithEmbeddingDimension(cfg.Embedding.Dimension),
		), nil
	default:
		return ollama.NewEmbedder(cfg.Ollama.BaseURL, cfg.Embedding.Model)
	}
}

func newIndex(cfg *config.Config, db *database.Database) (VectorIndex, error) {
	switch cfg.Index.Backend {
	case config.IndexBackendPgvector:
		return postgres.NewVectorStore(db.Pool, cfg.Embedding.Dimension), nil
	default:
		return localindex.Open(cfg.Index.Path, cfg.Embedding.Dimension)
	}
}

func newGenerationBackend(cfg *config.Config) (coreask.GenerationBackend, error) {
	switch cfg.LLM.Provider {
	case config.ProviderOpenAI:
		return openai.NewClient(
			cfg.OpenAI.APIKey,
			openai.WithModel(cfg.LLM.Model),
			openai.WithTimeout(cfg.LLM.Timeout),
		)
	default:
		return ollama.NewClient(cfg.Ollama.BaseURL, cfg.LLM.Model, cfg.LLM.Timeout)
	}
}

// Close は内部リソースを解放する。
func (c *ServiceContainer) Close() {
	if c == nil {
		return
	}
	if c.redis != nil && c.ownRedis {
		if err := c.redis.Close(); err != nil {
			c.Logger().Warn("failed to close redis client", "error", err)
		}
	}
	if c.database != nil {
		c.database.Close()
	}
}

// Logger はロガーを返す。
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// Config は設定を返す。
func (c *ServiceContainer) Config() *config.Config {
	if c == nil {
		return nil
	}
	return c.config
}

// Database はデータベースを返す。
func (c *ServiceContainer) Database() *database.Database {
	if c == nil {
		return nil
	}
	return c.database
}

// インターフェース実装の確認
var _ corejob.Observer = (*metrics.Metrics)(nil)
