// Package config loads kgraph configuration from a YAML file and the
// environment.
//
// Defaults come from DefaultConfig. A YAML file, when given, overrides the
// defaults; environment variables override both. Validate should be called
// before use.
//
// Example Usage:
//
//	cfg, err := config.LoadFromEnvOrFile("kgraph.yaml")
//	if err != nil {
//		return err
//	}
//	if err := cfg.Validate(); err != nil {
//		return fmt.Errorf("invalid config: %w", err)
//	}
//	logger := cfg.Logging.NewLogger(os.Stderr)
//
// Environment Variables:
//
// Server:
//   - PORT=9010 (or KGRAPH_HTTP_PORT, which wins when both are set)
//   - KGRAPH_HTTP_ADDRESS="0.0.0.0"
//   - KGRAPH_READ_TIMEOUT=30s, KGRAPH_WRITE_TIMEOUT=30s, KGRAPH_IDLE_TIMEOUT=120s
//   - KGRAPH_MAX_REQUEST_SIZE=10485760
//   - KGRAPH_CORS_ENABLED=true, KGRAPH_CORS_ORIGINS="*"
//
// Query:
//   - KGRAPH_QUERY_MAX_DEPTH=10, KGRAPH_QUERY_MAX_LIMIT=1000
//   - KGRAPH_QUERY_DEFAULT_DEPTH=1, KGRAPH_QUERY_DEFAULT_LIMIT=20
//   - KGRAPH_CACHE_ENABLED=true, KGRAPH_CACHE_SIZE=1000, KGRAPH_CACHE_TTL=5m
//
// Other:
//   - KGRAPH_WRITE_TOKEN_HASH (bcrypt hash; empty disables write protection)
//   - KGRAPH_LOG_LEVEL=info, KGRAPH_LOG_FORMAT=text
//   - KGRAPH_SEED_FILE
//   - KGRAPH_AUDIT_ENABLED=false, KGRAPH_AUDIT_PATH=./logs/audit.log, KGRAPH_AUDIT_SYNC=false
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all kgraph configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Query   QueryConfig   `yaml:"query"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
	Seed    SeedConfig    `yaml:"seed"`
	Audit   AuditConfig   `yaml:"audit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address        string        `yaml:"address"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxRequestSize int64         `yaml:"max_request_size"`
	EnableCORS     bool          `yaml:"enable_cors"`
	CORSOrigins    []string      `yaml:"cors_origins"`
}

// QueryConfig bounds query cost and configures the result cache.
type QueryConfig struct {
	// MaxDepth caps the neighbors depth and the path max_depth accepted from
	// clients.
	MaxDepth int `yaml:"max_depth"`
	// MaxLimit caps the search limit accepted from clients.
	MaxLimit int `yaml:"max_limit"`

	DefaultDepth int `yaml:"default_depth"`
	DefaultLimit int `yaml:"default_limit"`

	CacheEnabled bool          `yaml:"cache_enabled"`
	CacheSize    int           `yaml:"cache_size"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

// AuthConfig protects mutating routes.
type AuthConfig struct {
	// WriteTokenHash is a bcrypt hash of the bearer token required on
	// POST and DELETE routes. Empty disables the check.
	WriteTokenHash string `yaml:"write_token_hash"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// SeedConfig names a graph file loaded at startup.
type SeedConfig struct {
	File string `yaml:"file"`
}

// AuditConfig controls the mutation audit trail.
type AuditConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	SyncWrites bool   `yaml:"sync_writes"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:        "0.0.0.0",
			Port:           9010,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    120 * time.Second,
			MaxRequestSize: 10 * 1024 * 1024,
			EnableCORS:     true,
			CORSOrigins:    []string{"*"},
		},
		Query: QueryConfig{
			MaxDepth:     10,
			MaxLimit:     1000,
			DefaultDepth: 1,
			DefaultLimit: 20,
			CacheEnabled: true,
			CacheSize:    1000,
			CacheTTL:     5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Audit: AuditConfig{
			Path: "./logs/audit.log",
		},
	}
}

// LoadFile reads a YAML config file on top of the defaults.
// Keys absent from the file keep their default values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv returns the defaults with environment overrides applied.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()
	cfg.applyEnv()
	return cfg
}

// LoadFromEnvOrFile loads path (when non-empty) and applies environment
// overrides on top.
func LoadFromEnvOrFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromEnv(), nil
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Address = getEnv("KGRAPH_HTTP_ADDRESS", c.Server.Address)
	c.Server.Port = getEnvInt("KGRAPH_HTTP_PORT", getEnvInt("PORT", c.Server.Port))
	c.Server.ReadTimeout = getEnvDuration("KGRAPH_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("KGRAPH_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("KGRAPH_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.MaxRequestSize = int64(getEnvInt("KGRAPH_MAX_REQUEST_SIZE", int(c.Server.MaxRequestSize)))
	c.Server.EnableCORS = getEnvBool("KGRAPH_CORS_ENABLED", c.Server.EnableCORS)
	c.Server.CORSOrigins = getEnvStringSlice("KGRAPH_CORS_ORIGINS", c.Server.CORSOrigins)

	c.Query.MaxDepth = getEnvInt("KGRAPH_QUERY_MAX_DEPTH", c.Query.MaxDepth)
	c.Query.MaxLimit = getEnvInt("KGRAPH_QUERY_MAX_LIMIT", c.Query.MaxLimit)
	c.Query.DefaultDepth = getEnvInt("KGRAPH_QUERY_DEFAULT_DEPTH", c.Query.DefaultDepth)
	c.Query.DefaultLimit = getEnvInt("KGRAPH_QUERY_DEFAULT_LIMIT", c.Query.DefaultLimit)
	c.Query.CacheEnabled = getEnvBool("KGRAPH_CACHE_ENABLED", c.Query.CacheEnabled)
	c.Query.CacheSize = getEnvInt("KGRAPH_CACHE_SIZE", c.Query.CacheSize)
	c.Query.CacheTTL = getEnvDuration("KGRAPH_CACHE_TTL", c.Query.CacheTTL)

	c.Auth.WriteTokenHash = getEnv("KGRAPH_WRITE_TOKEN_HASH", c.Auth.WriteTokenHash)

	c.Logging.Level = getEnv("KGRAPH_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("KGRAPH_LOG_FORMAT", c.Logging.Format)

	c.Seed.File = getEnv("KGRAPH_SEED_FILE", c.Seed.File)

	c.Audit.Enabled = getEnvBool("KGRAPH_AUDIT_ENABLED", c.Audit.Enabled)
	c.Audit.Path = getEnv("KGRAPH_AUDIT_PATH", c.Audit.Path)
	c.Audit.SyncWrites = getEnvBool("KGRAPH_AUDIT_SYNC", c.Audit.SyncWrites)
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: http port %d", ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.MaxRequestSize <= 0 {
		return fmt.Errorf("%w: max request size %d", ErrInvalidConfig, c.Server.MaxRequestSize)
	}
	if c.Query.MaxDepth < 1 {
		return fmt.Errorf("%w: query max depth %d", ErrInvalidConfig, c.Query.MaxDepth)
	}
	if c.Query.MaxLimit < 1 {
		return fmt.Errorf("%w: query max limit %d", ErrInvalidConfig, c.Query.MaxLimit)
	}
	if c.Query.DefaultDepth < 1 || c.Query.DefaultDepth > c.Query.MaxDepth {
		return fmt.Errorf("%w: default depth %d outside [1, %d]", ErrInvalidConfig, c.Query.DefaultDepth, c.Query.MaxDepth)
	}
	if c.Query.DefaultLimit < 1 || c.Query.DefaultLimit > c.Query.MaxLimit {
		return fmt.Errorf("%w: default limit %d outside [1, %d]", ErrInvalidConfig, c.Query.DefaultLimit, c.Query.MaxLimit)
	}
	if c.Query.CacheEnabled && c.Query.CacheSize < 1 {
		return fmt.Errorf("%w: cache size %d", ErrInvalidConfig, c.Query.CacheSize)
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log format %q", ErrInvalidConfig, c.Logging.Format)
	}
	if c.Audit.Enabled && c.Audit.Path == "" {
		return fmt.Errorf("%w: audit enabled without a path", ErrInvalidConfig)
	}
	return nil
}

// String returns a representation safe for logging. The write token hash is
// reported only as present or absent.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{HTTP: %s:%d, MaxDepth: %d, MaxLimit: %d, Cache: %v, WriteAuth: %v, Seed: %q, Audit: %v}",
		c.Server.Address, c.Server.Port,
		c.Query.MaxDepth, c.Query.MaxLimit,
		c.Query.CacheEnabled,
		c.Auth.WriteTokenHash != "",
		c.Seed.File,
		c.Audit.Enabled,
	)
}

// NewLogger builds a slog.Logger writing to w with the configured level and
// format. Unknown values fall back to info and text.
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(l.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(l.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With(slog.String("service", "knowledge-graph"))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		// Bare integers are seconds
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultVal
}
