// This file defines the configuration structure for the application.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration settings for the application.
// It maps directly to the structure of config.yml.
type Config struct {
	Port     int `mapstructure:"port"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Data struct {
		// Path is the host data directory (capability keystore, etc.).
		Path string `mapstructure:"path"`
	} `mapstructure:"data"`
	// CacheTTL is how long a cached manga tree is served without a refetch,
	// in minutes. Zero means the cache never expires on read.
	CacheTTL int `mapstructure:"cache_ttl"`
	// GroupingSensitivity is consumed by the page-grouping feature, not the
	// host itself; it is carried in the snapshot for collaborators.
	GroupingSensitivity float64 `mapstructure:"grouping_sensitivity"`
	Sync                struct {
		// Interval is the background sync schedule in minutes. Zero
		// disables scheduled syncs.
		Interval int `mapstructure:"interval"`
		// MinInterval throttles opportunistic sync triggers, in minutes.
		MinInterval int `mapstructure:"min_interval"`
	} `mapstructure:"sync"`
}

// CacheTTLDuration returns the cache TTL as a duration.
func (c *Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Minute
}

// SyncMinInterval returns the sync throttle window as a duration.
func (c *Config) SyncMinInterval() time.Duration {
	return time.Duration(c.Sync.MinInterval) * time.Minute
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AddConfigPath(".")

	// Environment variable overrides, e.g. MANKAI_DATABASE_PATH overrides
	// the `database.path` key.
	viper.SetEnvPrefix("MANKAI")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("port", 8080)
	viper.SetDefault("database.path", "./mankai.db")
	viper.SetDefault("data.path", "./data")
	viper.SetDefault("cache_ttl", 60)
	viper.SetDefault("grouping_sensitivity", 0.5)
	viper.SetDefault("sync.interval", 360)
	viper.SetDefault("sync.min_interval", 5)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; use defaults.
		} else {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
