// Package main provides the PulseWatch server CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Database  DatabaseConfig  `yaml:"database"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Redis     RedisConfig     `yaml:"redis"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Rules     RulesConfig     `yaml:"rules"`
	Verbose   bool            `yaml:"-"` // set via CLI flag
}

// APIConfig contains HTTP API settings. The JWT secret comes from the
// PULSEWATCH_JWT_SECRET environment variable, never from the file.
type APIConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	RateLimit       int           `yaml:"rate_limit"`
	RateWindow      time.Duration `yaml:"rate_window"`
	LockoutAttempts int           `yaml:"lockout_attempts"`
	LockoutDuration time.Duration `yaml:"lockout_duration"`
}

// DatabaseConfig locates the SQLite metadata database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// TelemetryConfig contains ClickHouse connection settings.
type TelemetryConfig struct {
	Addresses     []string `yaml:"addresses"`
	Database      string   `yaml:"database"`
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"`
	RetentionDays int      `yaml:"retention_days"`
}

// RedisConfig contains Redis connection settings for alert state and the
// evaluation queue.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SchedulerConfig controls the evaluation cycle.
type SchedulerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Workers     int           `yaml:"workers"`
	BatchSize   int           `yaml:"batch_size"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// IngestConfig controls the telemetry write buffers.
type IngestConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxBuffer     int           `yaml:"max_buffer"`
}

// NotifierConfig contains outbound notification settings.
type NotifierConfig struct {
	Email         EmailConfig   `yaml:"email"`
	RatePerWindow int           `yaml:"rate_per_window"`
	RateWindow    time.Duration `yaml:"rate_window"`
}

// EmailConfig contains SMTP settings. Email channels are skipped when the
// host is empty.
type EmailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// RulesConfig points at an optional provisioned rules file, reloaded on
// change.
type RulesConfig struct {
	File string `yaml:"file"`
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.API.Host == "" {
		c.API.Host = "0.0.0.0"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/pulsewatch.db"
	}
	if len(c.Telemetry.Addresses) == 0 {
		c.Telemetry.Addresses = []string{"localhost:9000"}
	}
	if c.Telemetry.Database == "" {
		c.Telemetry.Database = "pulsewatch"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = time.Minute
	}
	if c.Scheduler.Workers == 0 {
		c.Scheduler.Workers = 4
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("api.port must be between 1 and 65535")
	}
	if c.Scheduler.Interval < time.Second {
		return fmt.Errorf("scheduler.interval must be at least 1s")
	}
	if c.Scheduler.Workers < 1 {
		return fmt.Errorf("scheduler.workers must be positive")
	}
	if c.Notifier.Email.Host != "" && c.Notifier.Email.From == "" {
		return fmt.Errorf("notifier.email.from is required when email is configured")
	}
	return nil
}
