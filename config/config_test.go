package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcrawfurd/slipway/config"
)

func TestLoad_Defaults(t *testing.T) {
	// The secret has no default; everything else should.
	t.Setenv("SLIPWAY_SIGNING_SECRET", "env-secret")

	cfg, err := config.Load(nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 5980, cfg.Server.Port)
	assert.Equal(t, "env-secret", cfg.Signing.Secret)
	assert.Equal(t, "http://localhost:5980", cfg.Signing.BaseURL)
	assert.Equal(t, 900, cfg.Signing.DefaultTTL)
	assert.Equal(t, 604800, cfg.Signing.MaxTTL)
	assert.Equal(t, 30, cfg.Service.BackendTimeout)
	assert.Equal(t, 100, cfg.Service.SweepBatchSize)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "slipway.db", cfg.Database.DSN)
	assert.Equal(t, "slipway_buckets", cfg.Database.Tables.Buckets)
	assert.Equal(t, "slipway_objects", cfg.Database.Tables.Objects)
	assert.Equal(t, "minio", cfg.Backend.Type)
	assert.Equal(t, "slipway", cfg.Backend.Minio.Bucket)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_MissingSecret(t *testing.T) {
	_, err := config.Load(nil, nil)
	assert.Error(t, err)
}

func TestLoad_ConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 8080
signing:
  secret: file-secret
  base_url: https://storage.example.com
  default_ttl: 300
  max_ttl: 3600
database:
  type: postgres
  dsn: postgres://localhost/test
  tables:
    buckets: custom_buckets
    objects: custom_objects
backend:
  type: memory
auth:
  keys:
    inline:
      - key-one
      - key-two
log:
  level: debug
`
	err := os.WriteFile(configPath, []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := config.Load([]string{configPath}, nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "file-secret", cfg.Signing.Secret)
	assert.Equal(t, "https://storage.example.com", cfg.Signing.BaseURL)
	assert.Equal(t, 300, cfg.Signing.DefaultTTL)
	assert.Equal(t, 3600, cfg.Signing.MaxTTL)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "custom_buckets", cfg.Database.Tables.Buckets)
	assert.Equal(t, "custom_objects", cfg.Database.Tables.Objects)
	assert.Equal(t, "memory", cfg.Backend.Type)
	assert.Equal(t, []string{"key-one", "key-two"}, cfg.Auth.Keys.Inline)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_ConfigFileMerge(t *testing.T) {
	tmpDir := t.TempDir()

	basePath := filepath.Join(tmpDir, "base.yaml")
	baseContent := `
signing:
  secret: base-secret
server:
  port: 5980
log:
  level: info
`
	err := os.WriteFile(basePath, []byte(baseContent), 0o644)
	require.NoError(t, err)

	overridePath := filepath.Join(tmpDir, "override.yaml")
	overrideContent := `
server:
  port: 9000
`
	err = os.WriteFile(overridePath, []byte(overrideContent), 0o644)
	require.NoError(t, err)

	cfg, err := config.Load([]string{basePath, overridePath}, nil)
	require.NoError(t, err)

	// Later file wins, untouched keys survive from the earlier one.
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "base-secret", cfg.Signing.Secret)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	err := os.WriteFile(configPath, []byte("signing:\n  secret: file-secret\ndatabase:\n  type: sqlite\n"), 0o644)
	require.NoError(t, err)

	t.Setenv("SLIPWAY_DATABASE_TYPE", "postgres")

	cfg, err := config.Load([]string{configPath}, nil)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "file-secret", cfg.Signing.Secret)
}

func TestLoad_Validation(t *testing.T) {
	tmpDir := t.TempDir()

	cases := map[string]string{
		"bad port":      "signing:\n  secret: s\nserver:\n  port: 0\n",
		"bad base url":  "signing:\n  secret: s\n  base_url: not-a-url\n",
		"bad backend":   "signing:\n  secret: s\nbackend:\n  type: carrier-pigeon\n",
		"bad log level": "signing:\n  secret: s\nlog:\n  level: chatty\n",
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(tmpDir, "bad.yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			_, err := config.Load([]string{path}, nil)
			assert.Error(t, err)
		})
	}
}
