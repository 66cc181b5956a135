package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// バックエンドの選択肢
const (
	IndexBackendLocal    = "local"
	IndexBackendPgvector = "pgvector"

	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	JobStorePostgres = "postgres"
	JobStoreRedis    = "redis"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// インジェスト対象のドキュメントディレクトリ
	DataDir string `validate:"required"`

	Index     IndexConfig
	Database  DatabaseConfig
	Embedding EmbeddingConfig
	LLM       LLMConfig
	Ollama    OllamaConfig
	OpenAI    OpenAIConfig
	Chunking  ChunkingConfig
	Retrieval RetrievalConfig
	Query     QueryConfig
	Job       JobConfig
	Server    ServerConfig
	Log       LogConfig
}

// IndexConfig はベクトルインデックスの設定
type IndexConfig struct {
	Backend   string `validate:"oneof=local pgvector"`
	Path      string // local バックエンドの保存先ディレクトリ
	HNSWIndex bool   // pgvector に HNSW インデックスを作成するか
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// EmbeddingConfig はEmbedding生成の設定
type EmbeddingConfig struct {
	Provider  string `validate:"oneof=ollama openai"`
	Model     string // 空の場合はプロバイダーのデフォルト
	Dimension int    `validate:"min=1"`
	CacheSize int    `validate:"min=0"` // クエリEmbeddingのLRUキャッシュ件数（0で無効）
	BatchSize int    `validate:"min=1"`
}

// LLMConfig は回答生成バックエンドの設定
type LLMConfig struct {
	Provider string `validate:"oneof=ollama openai"`
	Model    string
	Timeout  time.Duration `validate:"gt=0"`
}

// OllamaConfig はOllamaサーバーの設定
type OllamaConfig struct {
	BaseURL string `validate:"required,url"`
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey string
}

// ChunkingConfig はテキスト分割の設定
type ChunkingConfig struct {
	Size    int `validate:"min=1"`
	Overlap int `validate:"min=0,ltfield=Size"`
}

// RetrievalConfig は検索とコンテキスト組み立ての設定
type RetrievalConfig struct {
	K                int     `validate:"min=1"`
	Strategy         string  `validate:"oneof=similarity mmr"`
	Lambda           float64 `validate:"gte=0,lte=1"`
	MaxContextTokens int     `validate:"min=0"` // 0 の場合は無制限
}

// QueryConfig はクエリ入力の検証設定
type QueryConfig struct {
	MaxLength int `validate:"min=1"`
}

// JobConfig は非同期ジョブの設定
type JobConfig struct {
	Store           string `validate:"oneof=postgres redis"`
	RedisURL        string
	QueueKey        string `validate:"required"`
	Timeout         time.Duration `validate:"gt=0"`
	WorkerBatchSize int           `validate:"min=1"`
	TTL             time.Duration `validate:"gte=0"` // Redis ストアでのレコード保持期間（0で無期限）
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Port           int `validate:"min=1,max=65535"`
	AllowedOrigins []string
}

// LogConfig はロガーの設定
type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json text"`
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	embeddingProvider := strings.ToLower(getEnv("EMBEDDING_PROVIDER", ProviderOllama))

	cfg := &Config{
		DataDir: getEnv("DATA_DIR", "data"),
		Index: IndexConfig{
			Backend:   strings.ToLower(getEnv("INDEX_BACKEND", IndexBackendLocal)),
			Path:      getEnv("INDEX_PATH", "index"),
			HNSWIndex: getEnvAsBool("INDEX_HNSW", false),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "docrag"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "docrag"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Embedding: EmbeddingConfig{
			Provider:  embeddingProvider,
			Model:     getEnv("EMBEDDING_MODEL", ""),
			Dimension: getEnvAsInt("EMBEDDING_DIMENSION", defaultDimension(embeddingProvider)),
			CacheSize: getEnvAsInt("EMBEDDING_CACHE_SIZE", 256),
			BatchSize: getEnvAsInt("EMBEDDING_BATCH_SIZE", 100),
		},
		LLM: LLMConfig{
			Provider: strings.ToLower(getEnv("LLM_PROVIDER", ProviderOllama)),
			Model:    getEnv("LLM_MODEL", ""),
			Timeout:  getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
		},
		Ollama: OllamaConfig{
			BaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		},
		OpenAI: OpenAIConfig{
			APIKey: getEnv("OPENAI_API_KEY", ""),
		},
		Chunking: ChunkingConfig{
			Size:    getEnvAsInt("CHUNK_SIZE", 800),
			Overlap: getEnvAsInt("CHUNK_OVERLAP", 80),
		},
		Retrieval: RetrievalConfig{
			K:                getEnvAsInt("RETRIEVAL_K", 5),
			Strategy:         strings.ToLower(getEnv("RETRIEVAL_STRATEGY", "similarity")),
			Lambda:           getEnvAsFloat("RETRIEVAL_MMR_LAMBDA", 0.5),
			MaxContextTokens: getEnvAsInt("MAX_CONTEXT_TOKENS", 3000),
		},
		Query: QueryConfig{
			MaxLength: getEnvAsInt("QUERY_MAX_LENGTH", 2000),
		},
		Job: JobConfig{
			Store:           strings.ToLower(getEnv("JOB_STORE", JobStoreRedis)),
			RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379/0"),
			QueueKey:        getEnv("JOB_QUEUE_KEY", "docrag:jobs"),
			Timeout:         getEnvAsDuration("JOB_TIMEOUT", 2*time.Minute),
			WorkerBatchSize: getEnvAsInt("WORKER_BATCH_SIZE", 10),
			TTL:             getEnvAsDuration("JOB_TTL", 0),
		},
		Server: ServerConfig{
			Port:           getEnvAsInt("HTTP_PORT", 8080),
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
	}

	return cfg, nil
}

// defaultDimension はプロバイダーごとのデフォルト次元数
func defaultDimension(provider string) int {
	if provider == ProviderOpenAI {
		return 1536
	}
	return 768
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します（"30s" 形式または秒数）
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

// getEnvAsList はカンマ区切りの環境変数を文字列スライスとして取得します
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
