// Package config loads the service configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config represents the full configuration for the ledger service.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Postgres PostgresConfig `yaml:"postgres"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServiceConfig contains service-level settings.
type ServiceConfig struct {
	Name       string `yaml:"name"`
	HealthPort int    `yaml:"health_port"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`

	// MaxConns of 0 derives the pool size from the runtime flags.
	MaxConns              int `yaml:"max_conns"`
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds"`
	IdleTimeoutSeconds    int `yaml:"idle_timeout_seconds"`
}

// RuntimeConfig carries the deployment-mode capability flags.
type RuntimeConfig struct {
	// Serverless marks a short-lived execution environment.
	Serverless bool `yaml:"serverless"`

	// BuildTime marks the bootstrap phase, where the backing store may
	// not be reachable yet.
	BuildTime bool `yaml:"build_time"`

	// AllowInsecureTLS relaxes certificate verification outside
	// long-lived deployments.
	AllowInsecureTLS bool `yaml:"allow_insecure_tls"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file and applies defaults and
// environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "tabledger"
	}
	if c.Service.HealthPort == 0 {
		c.Service.HealthPort = 8090
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
	if c.Postgres.ConnectTimeoutSeconds == 0 {
		c.Postgres.ConnectTimeoutSeconds = 10
	}
	if c.Postgres.IdleTimeoutSeconds == 0 {
		c.Postgres.IdleTimeoutSeconds = 30
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		c.Postgres.Host = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		c.Postgres.Password = v
	}
	if v, ok := envBool("TABLEDGER_SERVERLESS"); ok {
		c.Runtime.Serverless = v
	}
	if v, ok := envBool("TABLEDGER_BUILD_TIME"); ok {
		c.Runtime.BuildTime = v
	}
}

func envBool(name string) (bool, bool) {
	v := os.Getenv(name)
	if v == "" {
		return false, false
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn().
			Str("name", name).
			Str("value", v).
			Msg("Ignoring unparseable boolean environment variable")
		return false, false
	}
	return parsed, true
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.User, c.Password, c.SSLMode)
}
