package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "quoth.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "QUOTH_PORT")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "QUOTH_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "QUOTH_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "QUOTH_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "QUOTH_PG_MAX_CONN_IDLE_TIME")
	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.Auth.AppURL, "APP_URL")
	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Auth.IdentityProviderURL, "IDENTITY_PROVIDER_URL")
	setString(&cfg.Auth.IdentityServiceKey, "IDENTITY_PROVIDER_SERVICE_KEY")
	setDuration(&cfg.Auth.SessionMaxIdle, "QUOTH_SESSION_MAX_IDLE")

	setString(&cfg.Embedding.URL, "EMBEDDING_PROVIDER_URL")
	setString(&cfg.Embedding.Key, "EMBEDDING_PROVIDER_KEY")
	setString(&cfg.Embedding.TextModel, "QUOTH_EMBED_TEXT_MODEL")
	setString(&cfg.Embedding.CodeModel, "QUOTH_EMBED_CODE_MODEL")
	setInt(&cfg.Embedding.Dimensions, "QUOTH_EMBED_DIMENSIONS")

	setString(&cfg.Reranker.URL, "RERANKER_PROVIDER_URL")
	setString(&cfg.Reranker.Key, "RERANKER_PROVIDER_KEY")
	setString(&cfg.Reranker.Model, "QUOTH_RERANK_MODEL")

	setString(&cfg.RAGWorker.URL, "RAG_WORKER_URL")
	setString(&cfg.RAGWorker.Key, "RAG_WORKER_KEY")
	setDuration(&cfg.RAGWorker.Timeout, "QUOTH_RAG_WORKER_TIMEOUT")

	setString(&cfg.Bus.SigningSecret, "BUS_SIGNING_SECRET")

	setDuration(&cfg.Indexer.EmbedSpacing, "QUOTH_INDEXER_EMBED_SPACING")
	setBool(&cfg.Indexer.Burst, "QUOTH_INDEXER_BURST")

	setString(&cfg.Templates.Dir, "QUOTH_TEMPLATES_DIR")

	setString(&cfg.Logging.Level, "QUOTH_LOG_LEVEL")
	setString(&cfg.Logging.Service, "QUOTH_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "QUOTH_LOG_ASYNC")
	setString(&cfg.Telemetry.OTLPEndpoint, "QUOTH_OTLP_ENDPOINT")

	setInt(&cfg.Rate.RequestsPerMinute, "QUOTH_RATE_RPM")
	setDuration(&cfg.Rate.Window, "QUOTH_RATE_WINDOW")
	setDuration(&cfg.Rate.CleanupInterval, "QUOTH_RATE_CLEANUP_INTERVAL")
}

// validate checks the invariants the rest of the system relies on.
func validate(cfg *Config) error {
	if cfg.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if cfg.Auth.AppURL == "" {
		return errors.New("APP_URL is required")
	}
	if cfg.Embedding.Dimensions <= 0 {
		return errors.New("embedding dimensions must be positive")
	}
	if cfg.Indexer.Burst {
		cfg.Indexer.EmbedSpacing = 0
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
