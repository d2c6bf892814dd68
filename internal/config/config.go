package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/quorumlab/nodegate/internal/api"
)

// Config is the fully validated process configuration. Values come from
// NODEGATE_* environment variables, optionally overlaid by a YAML file
// (NODEGATE_CONFIG_FILE) describing the per-access-level server table.
type Config struct {
	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	Servers        map[api.Access]api.ServerConfig
	RetryTimeout   time.Duration // fixed delay between bind attempts
	MaxRetries     int           // bind attempts per listener per generation
	DisableSignals bool          // leave SIGINT/SIGTERM to the embedding process

	// Redis backs the demo keystore service; empty addr disables it.
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	RedisConnectTimeout time.Duration
	RedisRetryInterval  time.Duration
}

// Load assembles and validates the configuration. Invalid values (bad CORS
// strings, empty whitelists, zero retries) are rejected here, never at
// request time.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:  getenv("NODEGATE_LOG_LEVEL", "info"),
		PrettyLog: mustBool("NODEGATE_PRETTY_LOG", true),

		RetryTimeout:   mustDuration("NODEGATE_RETRY_TIMEOUT", api.DefaultRetryTimeout),
		MaxRetries:     getenvInt("NODEGATE_MAX_RETRIES", api.DefaultMaxRetries),
		DisableSignals: mustBool("NODEGATE_DISABLE_SIGNALS", false),

		RedisAddr:           getenv("NODEGATE_REDIS_ADDR", ""),
		RedisPassword:       getenv("NODEGATE_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("NODEGATE_REDIS_DB", 0),
		RedisConnectTimeout: mustDuration("NODEGATE_REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("NODEGATE_REDIS_RETRY_INTERVAL", 2*time.Second),
	}

	if file := os.Getenv("NODEGATE_CONFIG_FILE"); file != "" {
		if err := cfg.applyFile(file); err != nil {
			return nil, err
		}
	} else if err := cfg.applyEnvServers(); err != nil {
		return nil, err
	}

	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("NODEGATE_MAX_RETRIES must be >= 1, got %d", cfg.MaxRetries)
	}
	return cfg, nil
}

// applyEnvServers builds the server table from flat environment variables:
// a public listener, and optionally a private one.
func (c *Config) applyEnvServers() error {
	public := api.NewServerConfig(getenv("NODEGATE_LISTEN_PUBLIC", ":8080"))

	if raw := os.Getenv("NODEGATE_ALLOW_ORIGIN"); raw != "" {
		origin, err := api.ParseAllowOrigin(raw)
		if err != nil {
			return fmt.Errorf("NODEGATE_ALLOW_ORIGIN: %w", err)
		}
		public.AllowOrigin = &origin
	}
	if raw := os.Getenv("NODEGATE_JSON_PAYLOAD_SIZE"); raw != "" {
		size, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || size <= 0 {
			return fmt.Errorf("NODEGATE_JSON_PAYLOAD_SIZE: invalid size %q", raw)
		}
		public.JSONPayloadSize = size
	}

	c.Servers = map[api.Access]api.ServerConfig{api.Public: public}

	if addr := getenv("NODEGATE_LISTEN_PRIVATE", "127.0.0.1:8081"); addr != "" {
		c.Servers[api.Private] = api.NewServerConfig(addr)
	}
	return nil
}

// helpers (env parsing falls back to defaults on malformed values)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
