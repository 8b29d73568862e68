package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Quote source and blob backend selectors.
const (
	QuoteSourceMock = "mock"
	QuoteSourceLive = "live"

	BlobLocal = "local"
	BlobGCS   = "gcs"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Servers
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8000"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
	CORSOrigins string `env:"CORS_ORIGINS" envDefault:"http://localhost:5173,http://localhost:3000"`

	// Persistence
	SQLitePath string `env:"SQLITE_PATH" envDefault:"data/trading_journal.db"`

	// Quote provider
	QuoteSource      string        `env:"QUOTE_SOURCE" envDefault:"mock"`
	TraderMadeAPIKey string        `env:"TRADEMADE_API_KEY"`
	TraderMadeURL    string        `env:"TRADEMADE_BASE_URL" envDefault:"https://marketdata.tradermade.com/api/v1"`
	QuoteTimeout     time.Duration `env:"QUOTE_TIMEOUT" envDefault:"10s"`
	StreamInterval   time.Duration `env:"STREAM_INTERVAL" envDefault:"1s"`
	CandleCacheTTL   time.Duration `env:"CANDLE_CACHE_TTL" envDefault:"5m"`

	// Redis is optional; empty address disables relay and quote snapshots.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Screenshot storage
	BlobBackend        string `env:"BLOB_BACKEND" envDefault:"local"`
	UploadDir          string `env:"UPLOAD_DIR" envDefault:"uploads"`
	UploadBaseURL      string `env:"UPLOAD_BASE_URL" envDefault:"/uploads"`
	GCSBucket          string `env:"GCS_BUCKET"`
	GCSCredentialsFile string `env:"GCS_CREDENTIALS_FILE"`
	MaxUploadBytes     int64  `env:"MAX_UPLOAD_BYTES" envDefault:"104857600"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`

	NotifyWebhookURL string `env:"NOTIFY_WEBHOOK_URL"`
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that would make the server unusable.
// A live quote source without an API key is allowed; calls report it per request.
func (c *Config) Validate() error {
	switch c.QuoteSource {
	case QuoteSourceMock, QuoteSourceLive:
	default:
		return fmt.Errorf("config: unknown QUOTE_SOURCE %q", c.QuoteSource)
	}
	switch c.BlobBackend {
	case BlobLocal:
	case BlobGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("config: BLOB_BACKEND=gcs requires GCS_BUCKET")
		}
	default:
		return fmt.Errorf("config: unknown BLOB_BACKEND %q", c.BlobBackend)
	}
	if c.StreamInterval <= 0 {
		return fmt.Errorf("config: STREAM_INTERVAL must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("config: MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

// Origins returns the allowed CORS origins.
func (c *Config) Origins() []string {
	parts := strings.Split(c.CORSOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// RedisEnabled reports whether a Redis address was configured.
func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }
