package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_YAMLAndDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  url: postgres://vibe@localhost/vibe?sslmode=disable
jwt:
  secret: s3cret
verification:
  cooldown: 30s
`)

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres://vibe@localhost/vibe?sslmode=disable", cfg.Database.DSN)
	assert.Equal(t, 30*time.Second, cfg.Verification.Cooldown)
	assert.Equal(t, 5*time.Minute, cfg.Verification.TTL)
	assert.Equal(t, 5, cfg.Verification.MaxPerWindow)
	assert.Equal(t, 15*time.Minute, cfg.Recovery.TTL)
	assert.Equal(t, 3, cfg.Recovery.MaxPerWindow)
	assert.Equal(t, "development", cfg.Env)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
jwt:
  secret: from-file
`)
	t.Setenv("PORT", "7000")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("VIBE_ENV", "production")

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_MissingFileUsesEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "only-env")

	cfg, err := Load(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 1\n")

	_, err := Load(context.Background(), path)
	assert.Error(t, err)
}
