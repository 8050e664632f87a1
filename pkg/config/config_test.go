package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"watchdogd/pkg/utils/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "watchdogd.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))

	return path
}

func TestLoadConfig_defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultWatchdog(), cfg.Watchdog)
	assert.False(t, cfg.Watchdog.Enabled)
	assert.Equal(t, constants.DefaultPingInterval, cfg.Watchdog.PingInterval())
	assert.Equal(t, constants.DaemonSockFilePath, cfg.Socket)
	assert.True(t, cfg.History.Enabled)
	assert.False(t, cfg.History.Consume)
	assert.Empty(t, cfg.Metrics.Listen)
}

func TestLoadConfig_file(t *testing.T) {
	path := writeConfig(t, `
daemonize: false
metrics:
  listen: 127.0.0.1:9309
watchdog:
  enabled: true
  ping_interval_ms: 2500
  watchdog_device_path: /dev/watchdog1
  reboot_cause_file_path: /var/lib/watchdogd/cause
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.False(t, cfg.Daemonize)
	assert.Equal(t, "127.0.0.1:9309", cfg.Metrics.Listen)
	assert.Equal(t, Watchdog{
		Enabled:             true,
		PingIntervalMs:      2500,
		WatchdogDevicePath:  "/dev/watchdog1",
		RebootCauseFilePath: "/var/lib/watchdogd/cause",
	}, cfg.Watchdog)
	assert.Equal(t, 2500*time.Millisecond, cfg.Watchdog.PingInterval())
	assert.Equal(t, path, ConfigFileUsed())
	assert.Same(t, cfg, GetConfig())
}

func TestLoadConfig_envOverridesFile(t *testing.T) {
	path := writeConfig(t, `
watchdog:
  enabled: false
  ping_interval_ms: 1000
`)
	t.Setenv("WATCHDOGD_WATCHDOG_ENABLED", "true")
	t.Setenv("WATCHDOGD_WATCHDOG_PING_INTERVAL_MS", "500")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.Watchdog.Enabled)
	assert.EqualValues(t, 500, cfg.Watchdog.PingIntervalMs)
}

func TestLoadConfig_invalidWatchdog(t *testing.T) {
	path := writeConfig(t, `
watchdog:
  ping_interval_ms: 0
  watchdog_device_path: ""
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping_interval_ms")
	assert.Contains(t, err.Error(), "watchdog_device_path")
}

func TestReload(t *testing.T) {
	path := writeConfig(t, `
watchdog:
  enabled: false
`)

	_, err := LoadConfig(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`
watchdog:
  enabled: true
  ping_interval_ms: 3000
`), 0600))

	cfg, err := Reload()
	require.NoError(t, err)
	assert.True(t, cfg.Watchdog.Enabled)
	assert.EqualValues(t, 3000, cfg.Watchdog.PingIntervalMs)
	assert.Same(t, cfg, GetConfig())
}

func TestWatchdogValidate(t *testing.T) {
	require.NoError(t, DefaultWatchdog().Validate())

	w := DefaultWatchdog()
	w.PingIntervalMs = -1
	w.RebootCauseFilePath = ""
	err := w.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reboot_cause_file_path")
}
