package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults when no config file", func(t *testing.T) {
		os.Remove("config.yml")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned an error: %v", err)
		}

		if cfg.Port != 8080 {
			t.Errorf("Expected default port 8080, got %d", cfg.Port)
		}
		if cfg.Database.Path != "./mankai.db" {
			t.Errorf("Expected default db path './mankai.db', got '%s'", cfg.Database.Path)
		}
		if cfg.Sync.MinInterval != 5 {
			t.Errorf("Expected default sync throttle of 5 minutes, got %d", cfg.Sync.MinInterval)
		}
		if cfg.SyncMinInterval() != 5*time.Minute {
			t.Errorf("SyncMinInterval() = %v, want 5m", cfg.SyncMinInterval())
		}
		if cfg.GroupingSensitivity != 0.5 {
			t.Errorf("Expected default grouping sensitivity 0.5, got %f", cfg.GroupingSensitivity)
		}
	})

	t.Run("Loads from config file", func(t *testing.T) {
		configContent := `
port: 9999
database:
  path: "/tmp/test.db"
cache_ttl: 15
sync:
  interval: 30
  min_interval: 10
`
		// Viper looks in the CWD, so the file goes there rather than in
		// t.TempDir().
		configPath := "config.yml"
		if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
			t.Fatalf("Failed to write test config file: %v", err)
		}
		defer os.Remove(configPath)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned an error: %v", err)
		}

		if cfg.Port != 9999 {
			t.Errorf("Expected port 9999, got %d", cfg.Port)
		}
		if cfg.Database.Path != "/tmp/test.db" {
			t.Errorf("Expected db path '/tmp/test.db', got '%s'", cfg.Database.Path)
		}
		if cfg.CacheTTLDuration() != 15*time.Minute {
			t.Errorf("CacheTTLDuration() = %v, want 15m", cfg.CacheTTLDuration())
		}
		if cfg.Sync.Interval != 30 {
			t.Errorf("Expected sync interval 30, got %d", cfg.Sync.Interval)
		}
		if cfg.SyncMinInterval() != 10*time.Minute {
			t.Errorf("SyncMinInterval() = %v, want 10m", cfg.SyncMinInterval())
		}
	})
}
