package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Len(t, cfg.Proxy.TrustedProxies, 3)
}

func TestLoad_BackendURLSelectsType(t *testing.T) {
	t.Run("postgres", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://u:p@localhost/dappkit")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "postgres", cfg.Storage.Type)
	})

	t.Run("redis", func(t *testing.T) {
		t.Setenv("REDIS_URL", "redis://localhost:6379/0")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "redis", cfg.Storage.Type)
	})

	t.Run("explicit type wins", func(t *testing.T) {
		t.Setenv("STORAGE_TYPE", "memory")
		t.Setenv("REDIS_URL", "redis://localhost:6379/0")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "memory", cfg.Storage.Type)
	})
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("SESSION_TTL_MINUTES", "5")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("TRUSTED_PROXIES", "10.1.0.0/16, 127.0.0.1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Session.TTL)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, []string{"10.1.0.0/16", "127.0.0.1"}, cfg.Proxy.TrustedProxies)
}
