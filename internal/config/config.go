// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joeshaw/envdecode"
)

type ServerConfig struct {
	Port           uint16        `env:"PORT,default=8080" validate:"required"`
	GinMode        string        `env:"GIN_MODE,default=release" validate:"oneof=debug release test"`
	CORSOrigin     string        `env:"CORS_ORIGIN,default=*"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT,default=30s" validate:"gt=0"`
	MaxBodyBytes   int64         `env:"MAX_BODY_BYTES,default=1048576" validate:"gt=0"`
}

type ModelConfig struct {
	Path     string `env:"MODEL_PATH,default="`
	Required bool   `env:"MODEL_REQUIRED,default=false"`

	// AdminSecret signs reload tokens. Empty leaves POST /model/reload closed.
	AdminSecret string `env:"ADMIN_TOKEN_SECRET,default=" validate:"omitempty,min=16"`
}

type EnsembleConfig struct {
	DataDir string  `env:"DATA_DIR,default=./data" validate:"required"`
	Profile string  `env:"ENSEMBLE_PROFILE,default="`
	Cap     float64 `env:"HYBRID_CAP,default=0.85" validate:"gt=0,lte=1"`
}

type SentimentConfig struct {
	URL               string        `env:"SENTIMENT_URL,default=" validate:"omitempty,url"`
	APIKey            string        `env:"SENTIMENT_API_KEY,default="`
	Timeout           time.Duration `env:"SENTIMENT_TIMEOUT,default=5s" validate:"gt=0"`
	RequestsPerSecond float64       `env:"SENTIMENT_RPS,default=10" validate:"gte=0"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,default="`
	Password string `env:"REDIS_PASSWORD,default="`
	DB       int    `env:"REDIS_DB,default=0" validate:"gte=0"`
}

type RateLimitConfig struct {
	PerMinute int `env:"RATE_LIMIT_PER_MIN,default=60" validate:"gte=0"`
}

type CacheConfig struct {
	TTL      time.Duration `env:"CACHE_TTL,default=60s" validate:"gte=0"`
	MaxItems int           `env:"CACHE_MAX_ITEMS,default=10000" validate:"gte=0"`
}

type BatchConfig struct {
	Workers int `env:"BATCH_WORKERS,default=8" validate:"gte=1,lte=50"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
	Format string `env:"LOG_FORMAT,default=json" validate:"oneof=json text"`
}

type Config struct {
	Server    ServerConfig
	Model     ModelConfig
	Ensemble  EnsembleConfig
	Sentiment SentimentConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Batch     BatchConfig
	Log       LogConfig
}

var validate = validator.New()

// Load decodes and validates the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Validate checks field constraints and cross-field rules.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			msgs := make([]string, 0, len(ve))
			for _, e := range ve {
				msgs = append(msgs, fmt.Sprintf("%s %s", e.Namespace(), e.ActualTag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	if cfg.Model.Required && cfg.Model.Path == "" {
		return errors.New("MODEL_PATH is required when MODEL_REQUIRED is set")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c ServerConfig) Addr() string { return fmt.Sprintf(":%d", c.Port) }
