package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/spigell/hh-screener/internal/ai/gemini"
	"github.com/spigell/hh-screener/internal/analysis"
	"github.com/spigell/hh-screener/internal/headhunter"
	"github.com/spigell/hh-screener/internal/store"
)

type Config struct {
	// UserID owns every synced record. When empty it is derived from the employer of the token.
	UserID    string `mapstructure:"user-id" validate:"omitempty,uuid"`
	TokenFile string `mapstructure:"token-file"`
	Token     string `mapstructure:"token"`
	// InMemory keeps everything in process memory instead of Postgres.
	InMemory bool `mapstructure:"in-memory"`

	HeadHunter headhunter.Config `mapstructure:"headhunter"`
	Database   DatabaseConfig    `mapstructure:"database"`
	Redis      RedisConfig       `mapstructure:"redis"`
	AI         AIConfig          `mapstructure:"ai"`
	Analysis   AnalysisConfig    `mapstructure:"analysis"`
}

type DatabaseConfig struct {
	store.DatabaseConfig `mapstructure:",squash"`
	AutoMigrate          bool `mapstructure:"auto-migrate"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type AIConfig struct {
	Provider     string        `mapstructure:"provider" validate:"oneof=gemini"`
	APIKey       string        `mapstructure:"api-key"`
	APIKeyFile   string        `mapstructure:"api-key-file"`
	MaxLogLength int           `mapstructure:"max-log-length" validate:"gte=0"`
	Gemini       gemini.Config `mapstructure:"gemini"`
}

type AnalysisConfig struct {
	analysis.CoordinatorConfig `mapstructure:",squash"`
	CacheTTL                   time.Duration `mapstructure:"cache-ttl" validate:"gte=0"`
}

// setDefaults registers a default for every tunable so that env bindings and
// Unmarshal see the complete key set.
func setDefaults(v *viper.Viper) {
	v.SetDefault("in-memory", false)

	v.SetDefault("headhunter.api-url", "https://api.hh.ru")
	v.SetDefault("headhunter.user-agent", app+"/"+version)
	v.SetDefault("headhunter.per-page", 100)
	v.SetDefault("headhunter.timeout", 30*time.Second)
	v.SetDefault("headhunter.retry.max-attempts", 4)
	v.SetDefault("headhunter.retry.base-delay", time.Second)
	v.SetDefault("headhunter.retry.rate-limit-wait", 60*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max-open-conns", 10)
	v.SetDefault("database.max-idle-conns", 2)
	v.SetDefault("database.conn-max-lifetime", 30*time.Minute)
	v.SetDefault("database.auto-migrate", false)

	v.SetDefault("redis.url", "")

	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.max-log-length", 500)
	v.SetDefault("ai.gemini.model", "gemini-2.5-pro")
	v.SetDefault("ai.gemini.max-retries", 5)
	v.SetDefault("ai.gemini.base-delay", 2*time.Second)
	v.SetDefault("ai.gemini.max-output-tokens", 2500)
	v.SetDefault("ai.gemini.temperature", 0.2)

	v.SetDefault("analysis.max-batch", analysis.DefaultMaxBatch)
	v.SetDefault("analysis.concurrency", analysis.DefaultConcurrency)
	v.SetDefault("analysis.keep-duplicates", false)
	v.SetDefault("analysis.skip-collections", []string{})
	v.SetDefault("analysis.cache-ttl", analysis.DefaultCacheTTL)
}

func bindEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"token-file":      "HH_TOKEN_FILE",
		"ai.api-key-file": "GEMINI_API_KEY_FILE",
		"ai.api-key":      "GEMINI_API_KEY",
		"database.url":    "DATABASE_URL",
		"redis.url":       "REDIS_URL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("binding %s environment variable: %w", env, err)
		}
	}
	return nil
}

func loadConfig(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	config.Analysis.SkipCollections = compact(config.Analysis.SkipCollections)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the values every command relies on.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			msgs := make([]string, 0, len(invalid))
			for _, fe := range invalid {
				msgs = append(msgs, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if !c.InMemory && strings.TrimSpace(c.Database.URL) == "" {
		return errors.New("invalid config: database.url is required (set DATABASE_URL or use --in-memory)")
	}
	if c.Analysis.MaxBatch < 0 || c.Analysis.Concurrency < 0 {
		return errors.New("invalid config: analysis.max-batch and analysis.concurrency must not be negative")
	}
	if c.Analysis.MaxBatch > 0 && c.Analysis.Concurrency > c.Analysis.MaxBatch {
		return fmt.Errorf("invalid config: analysis.concurrency %d exceeds analysis.max-batch %d",
			c.Analysis.Concurrency, c.Analysis.MaxBatch)
	}
	if c.HeadHunter.PerPage < 0 || c.HeadHunter.PerPage > 100 {
		return fmt.Errorf("invalid config: headhunter.per-page must be within 1..100, got %d", c.HeadHunter.PerPage)
	}
	return nil
}

func compact(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			result = append(result, value)
		}
	}
	return result
}
