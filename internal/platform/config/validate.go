package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate は設定値を検証します
// 個々の値はタグで検証し、プロバイダー間の依存関係はここで確認する
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed on %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if (c.LLM.Provider == ProviderOpenAI || c.Embedding.Provider == ProviderOpenAI) && c.OpenAI.APIKey == "" {
		return errors.New("invalid configuration: OPENAI_API_KEY is required when an openai provider is selected")
	}
	if c.Index.Backend == IndexBackendLocal && c.Index.Path == "" {
		return errors.New("invalid configuration: INDEX_PATH is required for the local index backend")
	}
	if c.Job.Store == JobStoreRedis && c.Job.RedisURL == "" {
		return errors.New("invalid configuration: REDIS_URL is required for the redis job store")
	}
	return nil
}

// UsesDatabase は PostgreSQL 接続が必要な構成かどうかを返します
func (c *Config) UsesDatabase() bool {
	return c.Index.Backend == IndexBackendPgvector || c.Job.Store == JobStorePostgres
}
