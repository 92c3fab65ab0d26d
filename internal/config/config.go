package config

import (
	"fmt"
)

// Config represents the main Billow daemon configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Database configuration
	Database DatabaseConfig `json:"database" mapstructure:"database"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Reminder sweep for stale approvals
	Reminder ReminderConfig `json:"reminder" mapstructure:"reminder"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// DatabaseConfig holds SQLite configuration
type DatabaseConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// ReminderConfig holds the stale-approval sweep configuration
type ReminderConfig struct {
	Enabled      bool   `json:"enabled" mapstructure:"enabled"`
	Schedule     string `json:"schedule" mapstructure:"schedule"`
	StaleMinutes int    `json:"stale_minutes" mapstructure:"stale_minutes"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3001,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
		Reminder: ReminderConfig{
			Enabled:      true,
			Schedule:     "*/5 * * * *",
			StaleMinutes: 30,
		},
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Reminder.Enabled && c.Reminder.Schedule == "" {
		return fmt.Errorf("reminder schedule is required when reminders are enabled")
	}
	return nil
}
