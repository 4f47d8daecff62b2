package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	// Run from an empty directory so no stray .env or config/app.yaml is picked up.
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	for _, key := range []string{"APP_ENV", "DATABASE_URL", "REDIS_URL", "JWT_SECRET", "CONFIG_PATH", "PROVIDER_ISSUER", "PROVIDER_AUDIENCE"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDevelopmentDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.IsDev())
	require.Equal(t, ":8080", cfg.Address())
	require.Equal(t, 5, cfg.LockoutThreshold)
	require.Equal(t, 15*time.Minute, cfg.LockoutDuration)
	require.Equal(t, 6, cfg.CodeLength)
	require.Equal(t, 4, cfg.PINLength)
	require.NotEmpty(t, cfg.JWTSecret)
}

func TestLoadProductionRequiresBackends(t *testing.T) {
	isolate(t)
	t.Setenv("APP_ENV", "production")

	_, err := Load()
	require.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("DATABASE_URL", "postgres://localhost/raga")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	_, err = Load()
	require.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := Load()
	require.NoError(t, err)
	require.False(t, cfg.IsDev())
}

func TestEnvOverridesFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"9000\"\nlockout_threshold: 3\nlockout_duration: 2m\ncode_ttl: 90s\n"), 0o600))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("LOCKOUT_DURATION_SECONDS", "60")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Address())
	require.Equal(t, 3, cfg.LockoutThreshold)
	require.Equal(t, time.Minute, cfg.LockoutDuration)
	require.Equal(t, 90*time.Second, cfg.CodeTTL)
}

func TestExplicitConfigPathMustExist(t *testing.T) {
	isolate(t)
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	require.ErrorContains(t, err, "read config file")
}

func TestInvalidDuration(t *testing.T) {
	isolate(t)
	t.Setenv("SHUTDOWN_TIMEOUT", "soon")

	_, err := Load()
	require.ErrorContains(t, err, "SHUTDOWN_TIMEOUT")
}

func TestProviderSettingsTogether(t *testing.T) {
	isolate(t)
	t.Setenv("PROVIDER_ISSUER", "https://securetoken.google.com/raga-mitra")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadClient(t *testing.T) {
	isolate(t)
	t.Setenv("RAGA_API_URL", "http://api.local/")
	t.Setenv("PROVIDER_TIMEOUT", "5s")

	cfg, err := LoadClient()
	require.NoError(t, err)
	require.Equal(t, "http://api.local", cfg.APIURL)
	require.Equal(t, 5*time.Second, cfg.ProviderTimeout)
	require.Equal(t, "+91", cfg.DefaultCountryCode)
	require.NotEmpty(t, cfg.SessionPath)
}
