package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost:5432/aerosuite?sslmode=disable")
	t.Setenv("PORT", "9001")
	t.Setenv("AUTOSCALE_MAX", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Autoscale.Max)
	assert.Equal(t, 4, cfg.Worker.Count)
	assert.Equal(t, "psi", cfg.Drift.MethodDefault)
	assert.Equal(t, 30*time.Minute, cfg.Database.ConnMaxLifetime)
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DB_URL", "")
	os.Unsetenv("DB_URL")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_YAMLOverlay(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost:5432/aerosuite?sslmode=disable")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0o644))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
}
