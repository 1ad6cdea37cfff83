package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"gcai"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"gcai"`

	NSQLookupd   string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost     string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP     string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	EnableEvents bool   `envconfig:"ENABLE_EVENTS" default:"true"`

	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Credential seeds, copied into settings when those are empty.
	OpenAIAPIKey     string `envconfig:"OPENAI_API_KEY"`
	OpenAIEndpoint   string `envconfig:"OPENAI_ENDPOINT"`
	OpenAIDeployment string `envconfig:"OPENAI_DEPLOYMENT"`
	GeminiAPIKey     string `envconfig:"GEMINI_API_KEY"`

	// Server
	ServerPort      int    `envconfig:"SERVER_PORT" default:"8081"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`
	UploadDir       string `envconfig:"UPLOAD_DIR" default:"./uploads"`
	PdftotextPath   string `envconfig:"PDFTOTEXT_PATH" default:"pdftotext"`

	// Worker pool
	WorkerConcurrency          int     `envconfig:"WORKER_CONCURRENCY" default:"4"`
	ChunkMaxAttempts           int     `envconfig:"CHUNK_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelayMS           int     `envconfig:"RETRY_BASE_DELAY_MS" default:"500"`
	RetryMaxDelayMS            int     `envconfig:"RETRY_MAX_DELAY_MS" default:"10000"`
	ProviderCallTimeoutSeconds int     `envconfig:"PROVIDER_CALL_TIMEOUT_SECONDS" default:"120"`
	ProviderRateLimitRPS       float64 `envconfig:"PROVIDER_RATE_LIMIT_RPS" default:"2"`
	ProviderRateLimitBurst     int     `envconfig:"PROVIDER_RATE_LIMIT_BURST" default:"4"`

	// Sessions
	SessionTTLMinutes           int `envconfig:"SESSION_TTL_MINUTES" default:"60"`
	SessionSweepIntervalSeconds int `envconfig:"SESSION_SWEEP_INTERVAL_SECONDS" default:"60"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Try loading .env from current dir and repo root
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../.env"))

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 16 {
		return fmt.Errorf("%w: WORKER_CONCURRENCY must be between 1 and 16", ErrInvalidValue)
	}
	if c.ChunkMaxAttempts < 1 {
		return fmt.Errorf("%w: CHUNK_MAX_ATTEMPTS must be at least 1", ErrInvalidValue)
	}
	if c.RetryMaxDelayMS < c.RetryBaseDelayMS {
		return fmt.Errorf("%w: RETRY_MAX_DELAY_MS must not be below RETRY_BASE_DELAY_MS", ErrInvalidValue)
	}
	if c.SessionTTLMinutes < 1 {
		return fmt.Errorf("%w: SESSION_TTL_MINUTES must be at least 1", ErrInvalidValue)
	}
	return nil
}

func (c *Config) RetryDelays() (base, ceiling time.Duration) {
	return time.Duration(c.RetryBaseDelayMS) * time.Millisecond, time.Duration(c.RetryMaxDelayMS) * time.Millisecond
}

func (c *Config) ProviderCallTimeout() time.Duration {
	return time.Duration(c.ProviderCallTimeoutSeconds) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

func (c *Config) SessionSweepInterval() time.Duration {
	return time.Duration(c.SessionSweepIntervalSeconds) * time.Second
}

func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadSizeMB << 20
}
