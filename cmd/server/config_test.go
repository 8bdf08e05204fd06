package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
api:
  port: 9000
database:
  path: /tmp/pw/meta.db
telemetry:
  addresses: ["ch1:9000", "ch2:9000"]
redis:
  addr: redis:6379
scheduler:
  interval: 30s
  workers: 8
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.API.Port != 9000 {
		t.Errorf("api port = %d, want 9000", cfg.API.Port)
	}
	if cfg.Scheduler.Interval != 30*time.Second {
		t.Errorf("interval = %v, want 30s", cfg.Scheduler.Interval)
	}
	if cfg.Scheduler.Workers != 8 {
		t.Errorf("workers = %d, want 8", cfg.Scheduler.Workers)
	}
	if len(cfg.Telemetry.Addresses) != 2 {
		t.Errorf("telemetry addresses = %v", cfg.Telemetry.Addresses)
	}
	// defaults fill unset fields
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("metrics addr = %q, want :9090", cfg.Metrics.Addr)
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.API.Port != 8080 {
		t.Errorf("default api port = %d, want 8080", cfg.API.Port)
	}
	if cfg.Scheduler.Interval != time.Minute {
		t.Errorf("default interval = %v, want 1m", cfg.Scheduler.Interval)
	}
	if cfg.Telemetry.Database != "pulsewatch" {
		t.Errorf("default telemetry database = %q", cfg.Telemetry.Database)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad port", "api:\n  port: 70000\n"},
		{"sub-second interval", "scheduler:\n  interval: 100ms\n"},
		{"email without from", "notifier:\n  email:\n    host: smtp.example.com\n"},
		{"not yaml", "{{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := LoadConfig(path); err == nil {
				t.Error("LoadConfig() expected error, got nil")
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/config.yaml"); err == nil {
		t.Error("LoadConfig() expected error for missing file")
	}
}
