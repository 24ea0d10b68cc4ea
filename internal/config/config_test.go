package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const minimalYAML = `
server:
  port: 9000
database:
  host: localhost
  name: idverify
  user: idverify
  password: secret
nats:
  url: nats://localhost:4222
minio:
  endpoint: localhost:9000
  access_key: minio
  secret_key: minio123
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	require.Equal(t, 9000, cfg.Server.Port)
	require.Equal(t, 5432, cfg.Database.Port)
	require.Equal(t, 20, cfg.Database.MaxConns)
	require.Equal(t, "idkit-intake", cfg.MinIO.IntakeBucket)
	require.Equal(t, 120, cfg.MinIO.SignedURLTTL)
	require.Equal(t, 2, cfg.Vision.WorkerCount)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)

	// Threshold table falls back to the tuned defaults.
	require.Equal(t, DefaultVerification(), cfg.Verification)
}

func TestLoadPartialVerificationOverride(t *testing.T) {
	yaml := minimalYAML + `
verification:
  face_match_threshold: 0.6
`
	cfg, err := Load(writeConfig(t, yaml))
	require.NoError(t, err)

	require.Equal(t, 0.6, cfg.Verification.FaceMatchThreshold)
	// Untouched thresholds still come from the default table.
	require.Equal(t, DefaultVerification().DocumentMinSize, cfg.Verification.DocumentMinSize)
	require.Equal(t, DefaultVerification().BarcodeMaxAttempts, cfg.Verification.BarcodeMaxAttempts)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("IDV_SERVER_PORT", "7777")
	t.Setenv("IDV_API_KEY", "sekret")
	t.Setenv("IDV_DB_HOST", "db.internal")

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	require.Equal(t, 7777, cfg.Server.Port)
	require.Equal(t, "sekret", cfg.Server.APIKey)
	require.Equal(t, "db.internal", cfg.Database.Host)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 5432, Name: "n", User: "u", Password: "p"}
	require.Equal(t, "postgres://u:p@h:5432/n?sslmode=disable", d.DSN())
}

func TestRangeContains(t *testing.T) {
	r := Range{Min: 0.2, Max: 0.85}
	require.True(t, r.Contains(0.2))
	require.True(t, r.Contains(0.85))
	require.True(t, r.Contains(0.5))
	require.False(t, r.Contains(0.19))
	require.False(t, r.Contains(0.86))
}
