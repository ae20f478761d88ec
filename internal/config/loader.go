// Package config provides configuration management for the STALL10N odds monitor.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix         = "STALL10N"
	defaultConfigPath = "config/config.yaml"
)

// Load reads and parses the configuration from file and environment variables.
// Placeholders of the form ${VAR_NAME} in the YAML file are expanded first.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v := newViper()
	if err := v.ReadConfig(bytes.NewBufferString(os.ExpandEnv(string(data)))); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// LoadWithDefaults loads configuration with default values for optional fields.
// A missing file is not an error; defaults and environment variables apply.
func LoadWithDefaults(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	v := newViper()
	setDefaults(v)

	if data, err := os.ReadFile(configPath); err == nil {
		if err := v.ReadConfig(bytes.NewBufferString(os.ExpandEnv(string(data)))); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "stall10n")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "stall10n")
	v.SetDefault("database.user", "stall10n")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.max_idle_connections", 2)

	v.SetDefault("provider.name", "statpal")
	v.SetDefault("provider.base_url", "https://statpal.io/api/v1/horse-racing")
	v.SetDefault("provider.access_key", "")
	v.SetDefault("provider.timeout_seconds", 10)
	v.SetDefault("provider.max_retries", 3)
	v.SetDefault("provider.retry_wait_min_millis", 500)
	v.SetDefault("provider.retry_wait_max_millis", 5000)
	v.SetDefault("provider.rate_limit_per_second", 1.0)
	v.SetDefault("provider.circuit_breaker_max", 5)
	v.SetDefault("provider.cache_ttl_seconds", 3600)

	v.SetDefault("quota.backend", "memory")
	v.SetDefault("quota.daily_limit", 100)
	v.SetDefault("quota.reset_timezone", "America/New_York")
	v.SetDefault("quota.key_prefix", "stall10n:quota")
	v.SetDefault("quota.redis_url", "")

	v.SetDefault("scheduler.poll_interval_seconds", 30)
	v.SetDefault("scheduler.intervals", []string{"10min_before", "5min_before", "2min_before", "1min_before", "at_post"})
	v.SetDefault("scheduler.staleness_window_minutes", 15)
	v.SetDefault("scheduler.grace_window_minutes", 30)
	v.SetDefault("scheduler.max_consecutive_misses", 3)
	v.SetDefault("scheduler.workers", 4)
	v.SetDefault("scheduler.look_ahead_hours", 3)
	v.SetDefault("scheduler.timezone", "America/New_York")
	v.SetDefault("scheduler.summary_cron", "55 23 * * *")

	v.SetDefault("engine.weights.form", 0.25)
	v.SetDefault("engine.weights.class", 0.20)
	v.SetDefault("engine.weights.connections", 0.15)
	v.SetDefault("engine.weights.speed", 0.20)
	v.SetDefault("engine.weights.conditions", 0.10)
	v.SetDefault("engine.weights.fitness", 0.10)
	v.SetDefault("engine.bankroll", 1000.0)
	v.SetDefault("engine.kelly_fraction", 0.25)
	v.SetDefault("engine.max_bet_fraction", 0.05)
	v.SetDefault("engine.min_stake", 2.0)
	v.SetDefault("engine.probability_floor", 0.001)

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.port", 8081)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}
