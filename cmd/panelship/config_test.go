package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/panelship/internal/shell/onepanel"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 35*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "data/panelship.db", cfg.Database.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.True(t, cfg.Docker.Enabled)
	assert.Empty(t, cfg.Docker.Host)

	assert.Equal(t, 30*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.Remote.TransferTimeout)
	assert.Equal(t, onepanel.DefaultUploadDir, cfg.Remote.UploadDir)

	assert.Equal(t, 2, cfg.Deploy.Workers)
	assert.Equal(t, 32, cfg.Deploy.QueueSize)
	assert.Empty(t, cfg.Deploy.TempDir)

	assert.True(t, cfg.Monitor.Enabled)
	assert.Equal(t, 60*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 10*time.Second, cfg.Monitor.Timeout)
	assert.Equal(t, 5, cfg.Monitor.MaxConcurrent)

	assert.Empty(t, cfg.Security.EncryptionKey)
	assert.True(t, cfg.MCP.Enabled)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
server:
  host: "127.0.0.1"
  port: 9000
  read_timeout: 60s
  write_timeout: 60s
  shutdown_timeout: 15s

database:
  dsn: "/tmp/test.db"

docker:
  enabled: false

log:
  level: "debug"
  format: "text"

remote:
  timeout: 5s
  upload_dir: /srv/uploads

deploy:
  workers: 4
  temp_dir: /var/tmp/panelship

monitor:
  enabled: false
  interval: 2m

mcp:
  enabled: false
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/tmp/test.db", cfg.Database.DSN)
	assert.False(t, cfg.Docker.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 5*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.Remote.TransferTimeout)
	assert.Equal(t, "/srv/uploads", cfg.Remote.UploadDir)
	assert.Equal(t, 4, cfg.Deploy.Workers)
	assert.Equal(t, 32, cfg.Deploy.QueueSize)
	assert.Equal(t, "/var/tmp/panelship", cfg.Deploy.TempDir)
	assert.False(t, cfg.Monitor.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.Monitor.Interval)
	assert.False(t, cfg.MCP.Enabled)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("PANELSHIP_SERVER_HOST", "192.168.1.1")
	t.Setenv("PANELSHIP_SERVER_PORT", "3000")
	t.Setenv("PANELSHIP_DATABASE_DSN", "/custom/path.db")
	t.Setenv("PANELSHIP_LOG_LEVEL", "warn")
	t.Setenv("PANELSHIP_LOG_FORMAT", "text")
	t.Setenv("PANELSHIP_SECURITY_ENCRYPTION_KEY", "hunter2")
	t.Setenv("PANELSHIP_MONITOR_INTERVAL", "15s")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.1", cfg.Server.Host)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/custom/path.db", cfg.Database.DSN)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "hunter2", cfg.Security.EncryptionKey)
	assert.Equal(t, 15*time.Second, cfg.Monitor.Interval)
}

func TestLoadConfig_DataDirDerivesDSN(t *testing.T) {
	clearEnv(t)

	t.Setenv("PANELSHIP_DATA_DIR", "/var/lib/panelship")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/panelship/panelship.db", cfg.Database.DSN)
}

func TestLoadConfig_ExplicitDSNOverridesDataDir(t *testing.T) {
	clearEnv(t)

	t.Setenv("PANELSHIP_DATA_DIR", "/var/lib/panelship")
	t.Setenv("PANELSHIP_DATABASE_DSN", "/custom/path.db")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "/custom/path.db", cfg.Database.DSN)
}

func TestLoadConfig_FileNotFound_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("invalid: yaml: content: [[["), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		level  string
		format string
	}{
		{"info", "json"},
		{"info", "text"},
		{"debug", "json"},
		{"warn", "json"},
		{"warning", "text"},
		{"error", "json"},
		{"invalid", "json"},
	}
	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			cfg := &Config{Log: LogConfig{Level: tt.level, Format: tt.format}}

			logger := SetupLogger(cfg)
			assert.NotNil(t, logger)
		})
	}
}

func TestSetupLogger_LevelApplied(t *testing.T) {
	logger := SetupLogger(&Config{Log: LogConfig{Level: "warn", Format: "json"}})

	assert.False(t, logger.Enabled(t.Context(), -4))
	assert.True(t, logger.Enabled(t.Context(), 4))
}

// =============================================================================
// Config Validation Tests
// =============================================================================

func TestConfig_Address(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
	}

	assert.Equal(t, "localhost:8080", cfg.Server.Address())
}

// =============================================================================
// Test Helpers
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"PANELSHIP_SERVER_HOST",
		"PANELSHIP_SERVER_PORT",
		"PANELSHIP_DATABASE_DSN",
		"PANELSHIP_DATA_DIR",
		"PANELSHIP_LOG_LEVEL",
		"PANELSHIP_LOG_FORMAT",
		"PANELSHIP_DOCKER_ENABLED",
		"PANELSHIP_SECURITY_ENCRYPTION_KEY",
		"PANELSHIP_MONITOR_INTERVAL",
		"PANELSHIP_MCP_ENABLED",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}
