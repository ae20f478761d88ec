// Package config provides configuration management for the STALL10N odds monitor.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Provider  ProviderConfig  `mapstructure:"provider" validate:"required"`
	Quota     QuotaConfig     `mapstructure:"quota" validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
	Engine    EngineConfig    `mapstructure:"engine" validate:"required"`
	API       APIConfig       `mapstructure:"api"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host" validate:"required"`
	Port               int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Name               string `mapstructure:"name" validate:"required"`
	User               string `mapstructure:"user" validate:"required"`
	Password           string `mapstructure:"password" validate:"required"`
	SSLMode            string `mapstructure:"ssl_mode" validate:"required,oneof=disable require verify-full"`
	MaxConnections     int    `mapstructure:"max_connections" validate:"required,gt=0"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections" validate:"required,gt=0"`
}

// ProviderConfig configures the external odds provider client
type ProviderConfig struct {
	Name               string  `mapstructure:"name" validate:"required,oneof=statpal"`
	BaseURL            string  `mapstructure:"base_url" validate:"required,url"`
	AccessKey          string  `mapstructure:"access_key" validate:"required"`
	TimeoutSeconds     int     `mapstructure:"timeout_seconds" validate:"required,gt=0"`
	MaxRetries         int     `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryWaitMinMillis int     `mapstructure:"retry_wait_min_millis" validate:"gte=0"`
	RetryWaitMaxMillis int     `mapstructure:"retry_wait_max_millis" validate:"gte=0"`
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second" validate:"required,gt=0"`
	CircuitBreakerMax  int     `mapstructure:"circuit_breaker_max" validate:"required,gt=0"`
	CacheTTLSeconds    int     `mapstructure:"cache_ttl_seconds" validate:"required,gt=0"`
}

// QuotaConfig configures the daily provider call budget
type QuotaConfig struct {
	Backend       string `mapstructure:"backend" validate:"required,oneof=memory redis"`
	DailyLimit    int    `mapstructure:"daily_limit" validate:"required,gt=0"`
	ResetTimezone string `mapstructure:"reset_timezone" validate:"required,timezone"`
	RedisURL      string `mapstructure:"redis_url"`
	KeyPrefix     string `mapstructure:"key_prefix"`
}

// SchedulerConfig configures interval capture scheduling
type SchedulerConfig struct {
	PollIntervalSeconds    int      `mapstructure:"poll_interval_seconds" validate:"required,gte=5"`
	Intervals              []string `mapstructure:"intervals" validate:"required,min=1,intervals"`
	StalenessWindowMinutes int      `mapstructure:"staleness_window_minutes" validate:"required,gt=0"`
	GraceWindowMinutes     int      `mapstructure:"grace_window_minutes" validate:"required,gt=0"`
	MaxConsecutiveMisses   int      `mapstructure:"max_consecutive_misses" validate:"required,gt=0"`
	Workers                int      `mapstructure:"workers" validate:"required,gt=0,lte=64"`
	LookAheadHours         int      `mapstructure:"look_ahead_hours" validate:"required,gt=0"`
	RacingDays             []string `mapstructure:"racing_days" validate:"omitempty,dive,weekday"`
	RacingHoursStart       int      `mapstructure:"racing_hours_start" validate:"gte=0,lte=24"`
	RacingHoursEnd         int      `mapstructure:"racing_hours_end" validate:"gte=0,lte=24"`
	Timezone               string   `mapstructure:"timezone" validate:"required,timezone"`
	SummaryCron            string   `mapstructure:"summary_cron"`
}

// WeightsConfig holds the six factor weights; they must sum to 1.0
type WeightsConfig struct {
	Form        float64 `mapstructure:"form" validate:"gte=0,lte=1"`
	Class       float64 `mapstructure:"class" validate:"gte=0,lte=1"`
	Connections float64 `mapstructure:"connections" validate:"gte=0,lte=1"`
	Speed       float64 `mapstructure:"speed" validate:"gte=0,lte=1"`
	Conditions  float64 `mapstructure:"conditions" validate:"gte=0,lte=1"`
	Fitness     float64 `mapstructure:"fitness" validate:"gte=0,lte=1"`
}

// Sum returns the total of all weights
func (w WeightsConfig) Sum() float64 {
	return w.Form + w.Class + w.Connections + w.Speed + w.Conditions + w.Fitness
}

// EngineConfig configures the probability/edge engine and stake sizing
type EngineConfig struct {
	Weights          WeightsConfig `mapstructure:"weights" validate:"required"`
	Bankroll         float64       `mapstructure:"bankroll" validate:"required,gt=0"`
	KellyFraction    float64       `mapstructure:"kelly_fraction" validate:"required,gt=0,lte=1"`
	MaxBetFraction   float64       `mapstructure:"max_bet_fraction" validate:"required,gt=0,lte=1"`
	MinStake         float64       `mapstructure:"min_stake" validate:"gte=0"`
	ProbabilityFloor float64       `mapstructure:"probability_floor" validate:"required,gt=0,lt=1"`
}

// APIConfig configures the HTTP query/command surface
type APIConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Path    string `mapstructure:"path"`
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// StalenessWindow returns how late an interval may still be captured
func (c *SchedulerConfig) StalenessWindow() time.Duration {
	return time.Duration(c.StalenessWindowMinutes) * time.Minute
}

// GraceWindow returns how long after post a race with no captures stays eligible
func (c *SchedulerConfig) GraceWindow() time.Duration {
	return time.Duration(c.GraceWindowMinutes) * time.Minute
}

// LookAhead returns how far ahead of post a race becomes eligible
func (c *SchedulerConfig) LookAhead() time.Duration {
	return time.Duration(c.LookAheadHours) * time.Hour
}

// Timeout returns the per-request provider timeout
func (c *ProviderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CacheTTL returns how long fetched odds stay readable from cache
func (c *ProviderConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Location returns the scheduler's racing-hours timezone, UTC if unknown
func (c *SchedulerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Weekdays returns the configured racing days; empty means every day
func (c *SchedulerConfig) Weekdays() []time.Weekday {
	days := make([]time.Weekday, 0, len(c.RacingDays))
	for _, name := range c.RacingDays {
		if day, ok := ParseWeekday(name); ok {
			days = append(days, day)
		}
	}
	return days
}

// ParseWeekday accepts full or three-letter English day names in any case
func ParseWeekday(name string) (time.Weekday, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if len(name) < 3 {
		return 0, false
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, true
		}
	}
	return 0, false
}
