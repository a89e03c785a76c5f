package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/artpar/panelship/internal/shell/onepanel"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	// DataDir holds the database when no DSN is given.
	DataDir string `mapstructure:"data_dir"`

	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Docker   DockerConfig   `mapstructure:"docker"`
	Log      LogConfig      `mapstructure:"log"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Deploy   DeployConfig   `mapstructure:"deploy"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Security SecurityConfig `mapstructure:"security"`
	MCP      MCPConfig      `mapstructure:"mcp"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// DockerConfig holds local container engine configuration.
type DockerConfig struct {
	// Enabled wires the local engine. Without it builds and deploys
	// answer engine_unavailable; remote management still works.
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RemoteConfig holds 1Panel client configuration.
type RemoteConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	TransferTimeout time.Duration `mapstructure:"transfer_timeout"`
	UploadDir       string        `mapstructure:"upload_dir"`
}

// DeployConfig holds pipeline and dispatcher configuration.
type DeployConfig struct {
	Workers   int    `mapstructure:"workers"`
	QueueSize int    `mapstructure:"queue_size"`
	TempDir   string `mapstructure:"temp_dir"`
}

// MonitorConfig holds host monitor configuration.
type MonitorConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
}

// SecurityConfig holds secrets configuration.
type SecurityConfig struct {
	// EncryptionKey is a passphrase the credential key is derived from.
	// Empty stores credentials in plain text.
	// Set via PANELSHIP_SECURITY_ENCRYPTION_KEY environment variable.
	EncryptionKey string `mapstructure:"encryption_key"`
}

// MCPConfig holds the agent tool endpoint configuration.
type MCPConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "35m") // synchronous deploys include the transfer
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("database.dsn", "") // derived from data_dir when empty
	v.SetDefault("docker.enabled", true)
	v.SetDefault("docker.host", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("remote.timeout", "30s")
	v.SetDefault("remote.transfer_timeout", "30m")
	v.SetDefault("remote.upload_dir", onepanel.DefaultUploadDir)

	v.SetDefault("deploy.workers", 2)
	v.SetDefault("deploy.queue_size", 32)
	v.SetDefault("deploy.temp_dir", "")

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.interval", "60s")
	v.SetDefault("monitor.timeout", "10s")
	v.SetDefault("monitor.max_concurrent", 5)

	v.SetDefault("security.encryption_key", "") // Must be set via environment
	v.SetDefault("mcp.enabled", true)

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("PANELSHIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = filepath.Join(cfg.DataDir, "panelship.db")
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
