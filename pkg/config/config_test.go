package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Server.Port)
	assert.Equal(t, "http://localhost:8000", cfg.Inference.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Inference.HealthInterval)
	assert.Equal(t, 5*time.Second, cfg.Inference.HealthTimeout)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, []string{"*"}, cfg.Security.AllowedOrigins)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CHATMALLU_CONFIG_DIR", t.TempDir())
	t.Setenv("INFERENCE_BASE_URL", "http://gpu-box:8000/")
	t.Setenv("STORAGE_DRIVER", "Redis")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("INFERENCE_HEALTH_INTERVAL", "10s")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "http://gpu-box:8000", cfg.Inference.BaseURL)
	assert.Equal(t, "redis", cfg.Storage.Driver)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Security.AllowedOrigins)
	assert.Equal(t, 10*time.Second, cfg.Inference.HealthInterval)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CHATMALLU_CONFIG_DIR", dir)
	content := "[server]\nport = \"9090\"\n\n[storage]\ndriver = \"memory\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chatmallu.toml"), []byte(content), 0o600))

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Driver)
}

func TestPostgresDSN(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	cfg.Storage.Postgres.Host = "db"
	cfg.Storage.Postgres.Password = "secret"

	assert.Equal(t, "host=db port=5432 user=postgres password=secret dbname=chatmallu sslmode=disable", cfg.PostgresDSN())
}
