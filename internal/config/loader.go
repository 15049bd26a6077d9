package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "switchboard.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
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
	setString(&cfg.Server.Port, "SWITCHBOARD_PORT")
	setString(&cfg.Server.BaseURL, "SWITCHBOARD_BASE_URL")
	setString(&cfg.Server.CORSOrigin, "SWITCHBOARD_CORS_ORIGIN")

	setStorageMode(&cfg.Storage.Mode, "SWITCHBOARD_STORAGE_MODE")
	setString(&cfg.Storage.FileDir, "SWITCHBOARD_STORAGE_FILE_DIR")
	setDuration(&cfg.Storage.PrimaryTimeout, "SWITCHBOARD_STORAGE_PRIMARY_TIMEOUT")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "SWITCHBOARD_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "SWITCHBOARD_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "SWITCHBOARD_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "SWITCHBOARD_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "SWITCHBOARD_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")
	setBool(&cfg.NATS.Enabled, "SWITCHBOARD_NATS_ENABLED")
	setStringSlice(&cfg.NATS.RemoteAgents, "SWITCHBOARD_NATS_REMOTE_AGENTS")

	setString(&cfg.Logging.Level, "SWITCHBOARD_LOG_LEVEL")
	setString(&cfg.Logging.Service, "SWITCHBOARD_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "SWITCHBOARD_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "SWITCHBOARD_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "SWITCHBOARD_BREAKER_TIMEOUT")

	setFloat64(&cfg.Routing.RouteThreshold, "SWITCHBOARD_ROUTE_THRESHOLD")
	setFloat64(&cfg.Routing.ClarifyThreshold, "SWITCHBOARD_CLARIFY_THRESHOLD")
	setFloat64(&cfg.Routing.DampingPenalty, "SWITCHBOARD_DAMPING_PENALTY")
	setDuration(&cfg.Routing.SessionTTL, "SWITCHBOARD_SESSION_TTL")
	setDuration(&cfg.Routing.SweepInterval, "SWITCHBOARD_SWEEP_INTERVAL")

	setInt(&cfg.Memory.RecallLimit, "SWITCHBOARD_RECALL_LIMIT")
	setInt(&cfg.Memory.ContextLimit, "SWITCHBOARD_CONTEXT_LIMIT")
	setFloat64(&cfg.Memory.MinRelevance, "SWITCHBOARD_MIN_RELEVANCE")

	setInt64(&cfg.Cache.MaxSizeMB, "SWITCHBOARD_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "SWITCHBOARD_CACHE_TTL")

	setString(&cfg.Auth.APIKeyHash, "SWITCHBOARD_API_KEY_HASH")

	setBool(&cfg.MCP.Enabled, "SWITCHBOARD_MCP_ENABLED")
	setString(&cfg.MCP.Addr, "SWITCHBOARD_MCP_ADDR")
	setString(&cfg.MCP.APIKey, "SWITCHBOARD_MCP_API_KEY")

	setBool(&cfg.Otel.Enabled, "SWITCHBOARD_OTEL_ENABLED")
	setString(&cfg.Otel.Endpoint, "SWITCHBOARD_OTEL_ENDPOINT")
}

// validate checks that required fields are set. Configuration errors are the
// only errors allowed to be fatal at process start.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Storage.Mode {
	case ModePrimary, ModeHybrid:
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for primary/hybrid storage")
		}
	case ModeFile:
	default:
		return fmt.Errorf("storage.mode must be primary, file or hybrid (got %q)", cfg.Storage.Mode)
	}
	if cfg.Storage.Mode != ModePrimary && cfg.Storage.FileDir == "" {
		return errors.New("storage.file_dir is required for file/hybrid storage")
	}
	if cfg.Storage.PrimaryTimeout <= 0 {
		return errors.New("storage.primary_timeout must be positive")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Routing.RouteThreshold <= cfg.Routing.ClarifyThreshold {
		return errors.New("routing.route_threshold must exceed routing.clarify_threshold")
	}
	if cfg.Memory.RecallLimit < 1 {
		return errors.New("memory.recall_limit must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setStringSlice splits a comma-separated env value into a slice.
func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}

func setStorageMode(dst *StorageMode, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = StorageMode(v)
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
