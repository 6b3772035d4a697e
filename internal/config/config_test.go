package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.False(t, cfg.Notify.Telegram.Enabled())
	assert.Empty(t, cfg.Store.PgDSN)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OVERSIGHT_HTTP_ADDR", ":9090")
	t.Setenv("OVERSIGHT_HTTP_RATE_PER_SECOND", "2.5")
	t.Setenv("OVERSIGHT_APPROVALS_TTL", "2m")
	t.Setenv("OVERSIGHT_NOTIFY_TELEGRAM_TOKEN", "123:abc")
	t.Setenv("OVERSIGHT_NOTIFY_TELEGRAM_CHAT_ID", "-100123")
	t.Setenv("OVERSIGHT_TRACING_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 2.5, cfg.HTTP.Rate.PerSecond)
	assert.Equal(t, 2*time.Minute, cfg.Approvals.TTL)
	assert.Equal(t, int64(-100123), cfg.Notify.Telegram.ChatID)
	assert.True(t, cfg.Notify.Telegram.Enabled())
	assert.True(t, cfg.Tracing.Enabled)
}

func TestFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":7000"
log:
  level: debug
  format: console
notify:
  retries: 5
rules:
  file: /etc/oversight/rules.yaml
`), 0o600))
	t.Setenv("OVERSIGHT_NOTIFY_RETRIES", "1")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 1, cfg.Notify.Retries, "environment wins over the file")
	assert.Equal(t, "/etc/oversight/rules.yaml", cfg.Rules.File)
	assert.Equal(t, 50, cfg.HTTP.Rate.Burst, "unset keys keep defaults")
}

func TestExplicitFileMustExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Log.Format = "xml"
	cfg.Approvals.TTL = time.Minute
	cfg.Approvals.SweepInterval = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.format")
	assert.Contains(t, err.Error(), "sweep_interval")

	require.NoError(t, Default().Validate())
}
