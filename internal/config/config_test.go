package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 4, cfg.Worker.Concurrency)
	require.Equal(t, "simulated", cfg.Adapter.Mode)
	require.Equal(t, "memory", cfg.Storage.Provider)
	require.Equal(t, "exports", cfg.Storage.Prefix)
	require.Equal(t, "application/json", cfg.Storage.ContentType)
	require.Equal(t, 5, cfg.Notify.MaxAttempts)
	require.Equal(t, time.Second, cfg.NotifyBaseDelay())
	require.True(t, cfg.Logging.Development)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
worker:
  concurrency: 2
adapter:
  mode: live
  base_url: https://example-source.com
  timeout_seconds: 10
notify:
  base_delay_ms: 250
  max_attempts: 3
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Server.Port)
	require.Equal(t, 2, cfg.Worker.Concurrency)
	require.Equal(t, "live", cfg.Adapter.Mode)
	require.Equal(t, 10*time.Second, cfg.AdapterTimeout())
	require.Equal(t, 250*time.Millisecond, cfg.NotifyBaseDelay())
	require.Equal(t, 3, cfg.Notify.MaxAttempts)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Adapter.Mode = "psychic"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Adapter.Mode = "live"
	cfg.Adapter.BaseURL = ""
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Storage.Provider = "gcs"
	cfg.Storage.GCSBucket = ""
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Storage.Provider = "local"
	cfg.Storage.LocalBaseDir = ""
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.PubSub.Enabled = true
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Notify.URL = ""
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Notify.MaxAttempts = 0
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Worker.Concurrency = 0
	require.Error(t, cfg.Validate())
}
