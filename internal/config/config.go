// Package config loads receiver configuration from defaults, an optional
// config file, environment variables, and bound flags, in that precedence
// order.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	// Network endpoint and association identity
	ListenHost   string `mapstructure:"listen-host"`
	ListenPort   int    `mapstructure:"listen-port"`
	AETitle      string `mapstructure:"ae-title"`
	MaxPDULength uint32 `mapstructure:"max-pdu-length"`

	// Metadata store
	DBPath           string `mapstructure:"db-path"`
	DBMaxConnections int    `mapstructure:"db-max-connections"`

	// Object storage layout
	StoragePath       string `mapstructure:"storage-path"`
	OrganizeByPatient bool   `mapstructure:"organize-by-patient"`
	OrganizeByStudy   bool   `mapstructure:"organize-by-study"`

	// Optional S3 mirror of stored objects
	ArchiveEnabled bool   `mapstructure:"archive-enabled"`
	ArchiveBucket  string `mapstructure:"archive-bucket"`
	ArchiveRegion  string `mapstructure:"archive-region"`
	ArchiveWorkers int    `mapstructure:"archive-workers"`
}

// Load reads configuration from environment, config file, and defaults.
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("listen-host", "0.0.0.0")
	viper.SetDefault("listen-port", 11112)
	viper.SetDefault("ae-title", "PACSD")
	viper.SetDefault("max-pdu-length", 16384)
	viper.SetDefault("db-path", ".artifacts/pacs.db")
	viper.SetDefault("db-max-connections", 10)
	viper.SetDefault("storage-path", ".artifacts/storage")
	viper.SetDefault("organize-by-patient", true)
	viper.SetDefault("organize-by-study", true)
	viper.SetDefault("archive-enabled", false)
	viper.SetDefault("archive-bucket", "")
	viper.SetDefault("archive-region", "us-east-1")
	viper.SetDefault("archive-workers", 4)

	// Environment variables (PACSD_LISTEN_PORT, etc.)
	viper.SetEnvPrefix("PACSD")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("pacsd")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/pacsd")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("listen-port must be in 1..65535")
	}
	if c.AETitle == "" {
		return fmt.Errorf("ae-title cannot be empty")
	}
	if len(c.AETitle) > 16 {
		return fmt.Errorf("ae-title cannot exceed 16 characters")
	}
	if c.MaxPDULength < 4096 {
		return fmt.Errorf("max-pdu-length must be at least 4096")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db-path cannot be empty")
	}
	if c.DBMaxConnections <= 0 {
		return fmt.Errorf("db-max-connections must be positive")
	}
	if c.StoragePath == "" {
		return fmt.Errorf("storage-path cannot be empty")
	}
	if c.ArchiveEnabled {
		if c.ArchiveBucket == "" {
			return fmt.Errorf("archive-bucket cannot be empty when archiving is enabled")
		}
		if c.ArchiveWorkers <= 0 {
			return fmt.Errorf("archive-workers must be positive")
		}
	}
	return nil
}

// ListenAddr returns the host:port endpoint to bind.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenHost, c.ListenPort)
}
