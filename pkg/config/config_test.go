package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddress)
	assert.Equal(t, "sqlite", cfg.Database.Type)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	content := []byte(`
listenAddress: ":9090"
database:
  type: postgres
  dsn: "host=localhost user=registry dbname=registry"
auth:
  issuer: "https://auth.lab.example"
serverVersion: "2.4.0"
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddress)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "https://auth.lab.example", cfg.Auth.Issuer)
	assert.Equal(t, "2.4.0", cfg.ServerVersion)
	// Fields absent from the file keep their defaults.
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listenAddress: [unclosed"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
