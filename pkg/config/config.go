package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	configName = "chatmallu"
	configDir  = ".chatmallu"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port     string
		Env      string
		GRPCPort string
		Timeout  time.Duration
	}

	// Inference server the characters are generated by
	Inference struct {
		BaseURL        string
		HealthInterval time.Duration
		HealthTimeout  time.Duration
	}

	// Storage configuration
	Storage struct {
		Driver     string // sqlite, postgres, redis or memory
		SQLitePath string
		Postgres   struct {
			Host     string
			Port     string
			User     string
			Password string
			Name     string
			SSLMode  string
			MaxConns int
		}
		Redis struct {
			Addr     string
			Password string
			DB       int
		}
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowedOrigins []string
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Cache settings
	Cache struct {
		Enabled     bool
		TTL         time.Duration
		MaxSize     int
		PurgeWindow time.Duration
	}

	Observability struct {
		Tracing bool
		Metrics bool
	}

	OpenAPI struct {
		SchemaPath string
	}
}

var (
	instance *Config
	once     sync.Once
)

// bindings maps viper keys to the environment variables that set them.
var bindings = map[string]string{
	"server.port":                "PORT",
	"server.env":                 "APP_ENV",
	"server.grpc_port":           "GRPC_PORT",
	"server.timeout":             "SERVER_TIMEOUT",
	"inference.base_url":         "INFERENCE_BASE_URL",
	"inference.health_interval":  "INFERENCE_HEALTH_INTERVAL",
	"inference.health_timeout":   "INFERENCE_HEALTH_TIMEOUT",
	"storage.driver":             "STORAGE_DRIVER",
	"storage.sqlite_path":        "SQLITE_PATH",
	"storage.postgres.host":      "DB_HOST",
	"storage.postgres.port":      "DB_PORT",
	"storage.postgres.user":      "DB_USER",
	"storage.postgres.password":  "DB_PASSWORD",
	"storage.postgres.name":      "DB_NAME",
	"storage.postgres.ssl_mode":  "DB_SSL_MODE",
	"storage.postgres.max_conns": "DB_MAX_CONNS",
	"storage.redis.addr":         "REDIS_URL",
	"storage.redis.password":     "REDIS_PASSWORD",
	"storage.redis.db":           "REDIS_DB",
	"security.rate_limit":        "RATE_LIMIT",
	"security.rate_limit_burst":  "RATE_LIMIT_BURST",
	"security.allowed_origins":   "ALLOWED_ORIGINS",
	"logging.level":              "LOG_LEVEL",
	"logging.format":             "LOG_FORMAT",
	"cache.enabled":              "CACHE_ENABLED",
	"cache.ttl":                  "CACHE_TTL",
	"cache.max_size":             "CACHE_MAX_SIZE",
	"cache.purge_window":         "CACHE_PURGE_WINDOW",
	"observability.tracing":      "ENABLE_TRACING",
	"observability.metrics":      "ENABLE_METRICS",
	"openapi.schema_path":        "OPENAPI_SCHEMA_PATH",
}

func setDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	v.SetDefault("server.port", "8081")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.grpc_port", "")
	v.SetDefault("server.timeout", 30*time.Second)

	v.SetDefault("inference.base_url", "http://localhost:8000")
	v.SetDefault("inference.health_interval", 30*time.Second)
	v.SetDefault("inference.health_timeout", 5*time.Second)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_path", filepath.Join(home, configDir, "state.db"))
	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.user", "postgres")
	v.SetDefault("storage.postgres.password", "postgres")
	v.SetDefault("storage.postgres.name", "chatmallu")
	v.SetDefault("storage.postgres.ssl_mode", "disable")
	v.SetDefault("storage.postgres.max_conns", 10)
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)

	v.SetDefault("security.rate_limit", 20)
	v.SetDefault("security.rate_limit_burst", 40)
	v.SetDefault("security.allowed_origins", []string{"*"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.max_size", 100)
	v.SetDefault("cache.purge_window", 10*time.Minute)

	v.SetDefault("observability.tracing", false)
	v.SetDefault("observability.metrics", true)

	v.SetDefault("openapi.schema_path", "")
}

// New creates the Config singleton from .env, the optional chatmallu config
// file and environment variables (highest precedence).
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		_ = godotenv.Load()

		cfg, err := Load(viper.New())
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v, falling back to defaults\n", err)
			cfg, _ = Load(nil)
		}
		instance = cfg
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Load builds a Config from v. A nil v yields pure defaults, ignoring
// config files and the environment.
func Load(v *viper.Viper) (*Config, error) {
	pure := v == nil
	if pure {
		v = viper.New()
	}
	setDefaults(v)

	if !pure {
		for key, env := range bindings {
			if err := v.BindEnv(key, env); err != nil {
				return nil, fmt.Errorf("bind %s: %w", env, err)
			}
		}

		v.SetConfigName(configName)
		if dir := os.Getenv("CHATMALLU_CONFIG_DIR"); dir != "" {
			v.AddConfigPath(dir)
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, configDir))
		}
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := &Config{}

	cfg.Server.Port = v.GetString("server.port")
	cfg.Server.Env = v.GetString("server.env")
	cfg.Server.GRPCPort = v.GetString("server.grpc_port")
	cfg.Server.Timeout = v.GetDuration("server.timeout")

	cfg.Inference.BaseURL = strings.TrimRight(v.GetString("inference.base_url"), "/")
	cfg.Inference.HealthInterval = v.GetDuration("inference.health_interval")
	cfg.Inference.HealthTimeout = v.GetDuration("inference.health_timeout")

	cfg.Storage.Driver = strings.ToLower(v.GetString("storage.driver"))
	cfg.Storage.SQLitePath = v.GetString("storage.sqlite_path")
	cfg.Storage.Postgres.Host = v.GetString("storage.postgres.host")
	cfg.Storage.Postgres.Port = v.GetString("storage.postgres.port")
	cfg.Storage.Postgres.User = v.GetString("storage.postgres.user")
	cfg.Storage.Postgres.Password = v.GetString("storage.postgres.password")
	cfg.Storage.Postgres.Name = v.GetString("storage.postgres.name")
	cfg.Storage.Postgres.SSLMode = v.GetString("storage.postgres.ssl_mode")
	cfg.Storage.Postgres.MaxConns = v.GetInt("storage.postgres.max_conns")
	cfg.Storage.Redis.Addr = v.GetString("storage.redis.addr")
	cfg.Storage.Redis.Password = v.GetString("storage.redis.password")
	cfg.Storage.Redis.DB = v.GetInt("storage.redis.db")

	cfg.Security.RateLimit = v.GetFloat64("security.rate_limit")
	cfg.Security.RateLimitBurst = v.GetInt("security.rate_limit_burst")
	cfg.Security.AllowedOrigins = splitList(v.GetStringSlice("security.allowed_origins"))

	cfg.Logging.Level = v.GetString("logging.level")
	cfg.Logging.Format = v.GetString("logging.format")

	cfg.Cache.Enabled = v.GetBool("cache.enabled")
	cfg.Cache.TTL = v.GetDuration("cache.ttl")
	cfg.Cache.MaxSize = v.GetInt("cache.max_size")
	cfg.Cache.PurgeWindow = v.GetDuration("cache.purge_window")

	cfg.Observability.Tracing = v.GetBool("observability.tracing")
	cfg.Observability.Metrics = v.GetBool("observability.metrics")

	cfg.OpenAPI.SchemaPath = v.GetString("openapi.schema_path")

	return cfg, nil
}

// splitList accepts both real lists and a single comma-separated entry,
// which is how list values arrive from the environment.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
