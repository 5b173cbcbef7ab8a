package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "config-test-secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, time.Hour, cfg.JWTTTL)
	require.Equal(t, 30*time.Second, cfg.AuthzCacheTTL)
	require.Equal(t, "ROLE_USER", cfg.DefaultRole)
	require.Equal(t, int32(16), cfg.PGMaxConns)
	require.Equal(t, 0, cfg.RedisDB)
	require.Equal(t, "info", cfg.LogLevel)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestIsProduction(t *testing.T) {
	t.Setenv("JWT_SECRET", "config-test-secret")
	t.Setenv("APP_ENV", "production")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
}
