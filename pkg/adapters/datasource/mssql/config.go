package mssql

import (
	"fmt"
)

// Config contains SQL Server connection options. Only SQL authentication
// is supported.
type Config struct {
	Host     string
	Port     int
	Database string

	Username string
	Password string

	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int // seconds
}

const (
	DefaultPort              = 1433
	DefaultConnectionTimeout = 30 // seconds
)

// withDefaults fills an unset port and connection timeout.
func (c Config) withDefaults() *Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ConnectionTimeout == 0 {
		c.ConnectionTimeout = DefaultConnectionTimeout
	}
	return &c
}

// WithDatabase returns a copy of the config targeting another database.
// An empty name keeps the configured database.
func (c Config) WithDatabase(database string) *Config {
	if database != "" {
		c.Database = database
	}
	return &c
}

// Validate checks if the config has all required fields.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Username == "" {
		return fmt.Errorf("username is required for SQL authentication")
	}
	if c.ConnectionTimeout < 0 {
		return fmt.Errorf("invalid connection timeout: %d", c.ConnectionTimeout)
	}
	return nil
}
