package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable LoadFromEnv reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "KGRAPH_HTTP_PORT", "KGRAPH_HTTP_ADDRESS",
		"KGRAPH_READ_TIMEOUT", "KGRAPH_WRITE_TIMEOUT", "KGRAPH_IDLE_TIMEOUT",
		"KGRAPH_MAX_REQUEST_SIZE", "KGRAPH_CORS_ENABLED", "KGRAPH_CORS_ORIGINS",
		"KGRAPH_QUERY_MAX_DEPTH", "KGRAPH_QUERY_MAX_LIMIT",
		"KGRAPH_QUERY_DEFAULT_DEPTH", "KGRAPH_QUERY_DEFAULT_LIMIT",
		"KGRAPH_CACHE_ENABLED", "KGRAPH_CACHE_SIZE", "KGRAPH_CACHE_TTL",
		"KGRAPH_WRITE_TOKEN_HASH", "KGRAPH_LOG_LEVEL", "KGRAPH_LOG_FORMAT",
		"KGRAPH_SEED_FILE", "KGRAPH_AUDIT_ENABLED", "KGRAPH_AUDIT_PATH", "KGRAPH_AUDIT_SYNC",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 9010, cfg.Server.Port)
	assert.Equal(t, int64(10*1024*1024), cfg.Server.MaxRequestSize)
	assert.True(t, cfg.Server.EnableCORS)
	assert.Equal(t, 10, cfg.Query.MaxDepth)
	assert.Equal(t, 1000, cfg.Query.MaxLimit)
	assert.Equal(t, 1, cfg.Query.DefaultDepth)
	assert.Equal(t, 20, cfg.Query.DefaultLimit)
	assert.Equal(t, 5*time.Minute, cfg.Query.CacheTTL)
	assert.False(t, cfg.Audit.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Run("PORT as in the original service", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PORT", "8088")
		assert.Equal(t, 8088, LoadFromEnv().Server.Port)
	})

	t.Run("KGRAPH_HTTP_PORT wins over PORT", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PORT", "8088")
		t.Setenv("KGRAPH_HTTP_PORT", "9999")
		assert.Equal(t, 9999, LoadFromEnv().Server.Port)
	})

	t.Run("typed values", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("KGRAPH_QUERY_MAX_DEPTH", "4")
		t.Setenv("KGRAPH_CACHE_TTL", "90")
		t.Setenv("KGRAPH_CACHE_ENABLED", "off")
		t.Setenv("KGRAPH_CORS_ORIGINS", "https://a.example, https://b.example,")
		t.Setenv("KGRAPH_AUDIT_ENABLED", "yes")

		cfg := LoadFromEnv()
		assert.Equal(t, 4, cfg.Query.MaxDepth)
		assert.Equal(t, 90*time.Second, cfg.Query.CacheTTL)
		assert.False(t, cfg.Query.CacheEnabled)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
		assert.True(t, cfg.Audit.Enabled)
	})

	t.Run("malformed numbers keep the default", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PORT", "eighty")
		t.Setenv("KGRAPH_READ_TIMEOUT", "soon")
		cfg := LoadFromEnv()
		assert.Equal(t, 9010, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	})
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
server:
  port: 7000
  cors_origins: ["http://localhost:3000"]
query:
  max_depth: 6
  cache_ttl: 30s
logging:
  level: debug
  format: json
seed:
  file: ./graph.yaml
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 6, cfg.Query.MaxDepth)
	assert.Equal(t, 30*time.Second, cfg.Query.CacheTTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "./graph.yaml", cfg.Seed.File)

	// Untouched keys keep their defaults.
	assert.Equal(t, 1000, cfg.Query.MaxLimit)
	assert.Equal(t, "0.0.0.0", cfg.Server.Address)

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := LoadFile(writeFile(t, "server: [unterminated"))
		assert.Error(t, err)
	})
}

func TestLoadFromEnvOrFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "server:\n  port: 7000\nquery:\n  max_limit: 50\n  default_limit: 10\n")
	t.Setenv("KGRAPH_HTTP_PORT", "7001")

	cfg, err := LoadFromEnvOrFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Server.Port, "env overrides file")
	assert.Equal(t, 50, cfg.Query.MaxLimit, "file overrides defaults")

	cfg, err = LoadFromEnvOrFile("")
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Server.Port)
	assert.Equal(t, 1000, cfg.Query.MaxLimit)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }, "http port"},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, "http port"},
		{"max depth", func(c *Config) { c.Query.MaxDepth = 0 }, "max depth"},
		{"default depth above max", func(c *Config) { c.Query.DefaultDepth = 11 }, "default depth"},
		{"default limit above max", func(c *Config) { c.Query.MaxLimit = 5 }, "default limit"},
		{"cache size", func(c *Config) { c.Query.CacheSize = 0 }, "cache size"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "log level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "log format"},
		{"audit path", func(c *Config) { c.Audit.Enabled = true; c.Audit.Path = "" }, "audit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("disabled cache ignores size", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Query.CacheEnabled = false
		cfg.Query.CacheSize = 0
		assert.NoError(t, cfg.Validate())
	})
}

func TestString_HidesSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Auth.WriteTokenHash = "$2a$10$abcdefghijklmnopqrstuv"

	s := cfg.String()
	assert.NotContains(t, s, "$2a$")
	assert.Contains(t, s, "WriteAuth: true")
}

func TestLoggingConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "node_id", "n1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"service":"knowledge-graph"`)

	buf.Reset()
	LoggingConfig{Level: "bogus"}.NewLogger(&buf).Info("text fallback")
	assert.True(t, strings.Contains(buf.String(), "msg=\"text fallback\""))
}
