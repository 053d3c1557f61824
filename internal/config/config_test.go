package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "localchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
environment: development
server:
  listen: ":9000"
query:
  base_url: "https://rooms.example.com"
  timeout: 4s
store:
  backend: file
  path: /tmp/localchat/state.cbor
  pending_ttl: 90s
discovery:
  page_size: 50
development:
  log:
    level: debug
    development: true
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Listen)
	assert.Equal(t, 4*time.Second, cfg.Query.Timeout.D())
	assert.Equal(t, BackendFile, cfg.Store.Backend)
	assert.Equal(t, 90*time.Second, cfg.Store.PendingTTL.D())
	assert.Equal(t, 50, cfg.Discovery.PageSize)
	assert.Equal(t, 0.35, cfg.Discovery.PanFraction, "unset fields keep defaults")
	assert.Equal(t, "debug", cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestProductionDefaultsToJSONLogs(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "environment: production\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Log.Development)
}

func TestProductionSectionOverrides(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `
environment: production
store:
  backend: memory
production:
  store:
    backend: postgres
    dsn: postgres://localchat@db/localchat
`))
	require.NoError(t, err)
	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, "postgres://localchat@db/localchat", cfg.Store.DSN)
	require.NoError(t, cfg.Validate())
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadFile(writeConfig(t, "query:\n  timeout: soon\n"))
	assert.ErrorContains(t, err, "line 2")
}

func TestEnvOverrides(t *testing.T) {
	env := map[string]string{
		"LOCALCHAT_LISTEN":        ":7000",
		"LOCALCHAT_STORE_BACKEND": "postgres",
		"LOCALCHAT_DATABASE_URL":  "postgres://x",
		"LOCALCHAT_REDIS_ADDR":    "redis:6379",
		"LOCALCHAT_PAGE_SIZE":     "5",
	}
	cfg := Default()
	require.NoError(t, cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))
	assert.Equal(t, ":7000", cfg.Server.Listen)
	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, "postgres://x", cfg.Store.DSN)
	assert.Equal(t, "redis:6379", cfg.LiveFeed.RedisAddr)
	assert.Equal(t, 5, cfg.Discovery.PageSize)

	env["LOCALCHAT_PAGE_SIZE"] = "many"
	assert.Error(t, Default().applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))
}

func TestLoadReadsProcessEnv(t *testing.T) {
	t.Setenv("LOCALCHAT_QUERY_URL", "https://q.example.com")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://q.example.com", cfg.Query.BaseURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"environment", func(c *Config) { c.Environment = "staging" }, "invalid environment"},
		{"relative query url", func(c *Config) { c.Query.BaseURL = "/rooms" }, "query.base_url"},
		{"file without path", func(c *Config) { c.Store.Backend = BackendFile }, "store.path"},
		{"postgres without dsn", func(c *Config) { c.Store.Backend = BackendPostgres }, "store.dsn"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "sqlite" }, "store.backend"},
		{"pan fraction", func(c *Config) { c.Discovery.PanFraction = 2 }, "pan_fraction"},
		{"page size", func(c *Config) { c.Discovery.PageSize = 0 }, "page_size"},
		{"redis without channel", func(c *Config) {
			c.LiveFeed.RedisAddr = "redis:6379"
			c.LiveFeed.Channel = ""
		}, "live_feed.channel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
