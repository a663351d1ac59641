package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8420", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 10000, cfg.Ingest.QueueSize)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatPeriod())
	assert.Equal(t, 60, cfg.RateLimit.WriteRPS)
	assert.Equal(t, 600, cfg.RateLimit.ReadRPS)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roost.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listenAddr: ":9000"
log:
  level: debug
  format: json
ingest:
  heartbeatPeriodSec: 10
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 10*time.Second, cfg.HeartbeatPeriod())
	// Untouched values keep their defaults
	assert.Equal(t, 10000, cfg.Ingest.QueueSize)
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roost.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  format: xml\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("ingest:\n  queueSize: -5\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
