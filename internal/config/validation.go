// Package config provides configuration management for the STALL10N odds monitor.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/yourusername/stall10n/internal/models"
)

// weightSumTolerance bounds how far the factor weights may drift from 1.0
const weightSumTolerance = 1e-6

// ErrConfiguration is matched by every ConfigurationError
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError reports a missing or invalid setting. It is fatal at startup.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// Is lets errors.Is match ErrConfiguration
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// CustomValidator wraps the validator with custom validation rules
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new validator with custom validation functions
func NewValidator() *CustomValidator {
	v := validator.New()

	_ = v.RegisterValidation("environment", validateEnvironment)
	_ = v.RegisterValidation("loglevel", validateLogLevel)
	_ = v.RegisterValidation("intervals", validateIntervals)
	_ = v.RegisterValidation("weekday", validateWeekday)

	return &CustomValidator{validator: v}
}

// Validate validates the entire configuration
func Validate(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

// Validate validates the configuration using registered validation rules
func (cv *CustomValidator) Validate(cfg *Config) error {
	if err := cv.validator.Struct(cfg); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return formatValidationErrors(validationErrors)
		}
		return &ConfigurationError{Message: err.Error()}
	}

	return validateCrossField(cfg)
}

func validateEnvironment(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "development", "staging", "production":
		return true
	default:
		return false
	}
}

func validateLogLevel(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// validateIntervals requires known labels with no repeats
func validateIntervals(fl validator.FieldLevel) bool {
	labels, ok := fl.Field().Interface().([]string)
	if !ok || len(labels) == 0 {
		return false
	}

	seen := make(map[string]bool, len(labels))
	for _, label := range labels {
		if !models.IntervalLabel(label).IsValid() || seen[label] {
			return false
		}
		seen[label] = true
	}
	return true
}

func validateWeekday(fl validator.FieldLevel) bool {
	_, ok := ParseWeekday(fl.Field().String())
	return ok
}

// validateCrossField performs cross-field validations
func validateCrossField(cfg *Config) error {
	if sum := cfg.Engine.Weights.Sum(); math.Abs(sum-1.0) > weightSumTolerance {
		return &ConfigurationError{
			Field:   "engine.weights",
			Message: fmt.Sprintf("factor weights must sum to 1.0, got %.6f", sum),
		}
	}

	if cfg.Scheduler.GraceWindowMinutes < cfg.Scheduler.StalenessWindowMinutes {
		return &ConfigurationError{
			Field:   "scheduler.grace_window_minutes",
			Message: "grace window cannot be shorter than the staleness window",
		}
	}

	if len(cfg.Scheduler.RacingDays) > 0 && cfg.Scheduler.RacingHoursStart >= cfg.Scheduler.RacingHoursEnd {
		return &ConfigurationError{
			Field:   "scheduler.racing_hours_start",
			Message: "racing hours start must be before racing hours end",
		}
	}

	if cfg.Provider.RetryWaitMaxMillis < cfg.Provider.RetryWaitMinMillis {
		return &ConfigurationError{
			Field:   "provider.retry_wait_max_millis",
			Message: "retry wait max cannot be below retry wait min",
		}
	}

	if cfg.Quota.Backend == "redis" && cfg.Quota.RedisURL == "" {
		return &ConfigurationError{
			Field:   "quota.redis_url",
			Message: "redis quota backend requires a redis_url",
		}
	}

	if cfg.IsProduction() && cfg.Database.SSLMode == "disable" {
		return &ConfigurationError{
			Field:   "database.ssl_mode",
			Message: "production environment requires SSL mode to be 'require' or 'verify-full'",
		}
	}

	if cfg.Database.MaxIdleConnections > cfg.Database.MaxConnections {
		return &ConfigurationError{
			Field:   "database.max_idle_connections",
			Message: "max_idle_connections cannot exceed max_connections",
		}
	}

	return nil
}

// formatValidationErrors formats validation errors into a readable ConfigurationError
func formatValidationErrors(validationErrors validator.ValidationErrors) error {
	var b strings.Builder
	for _, fieldError := range validationErrors {
		field := fieldError.Namespace()
		value := fieldError.Value()

		switch fieldError.Tag() {
		case "required":
			fmt.Fprintf(&b, "- Field '%s' is required\n", field)
		case "url":
			fmt.Fprintf(&b, "- Field '%s' must be a valid URL, got '%v'\n", field, value)
		case "min", "max":
			fmt.Fprintf(&b, "- Field '%s' validation failed: %s constraint violated\n", field, fieldError.Tag())
		case "gt", "gte", "lt", "lte":
			fmt.Fprintf(&b, "- Field '%s' validation failed: numeric constraint %s violated\n", field, fieldError.Tag())
		case "environment":
			fmt.Fprintf(&b, "- Field '%s' must be one of: development, staging, production\n", field)
		case "loglevel":
			fmt.Fprintf(&b, "- Field '%s' must be one of: debug, info, warn, error\n", field)
		case "intervals":
			fmt.Fprintf(&b, "- Field '%s' must list distinct labels from: 10min_before, 5min_before, 2min_before, 1min_before, at_post\n", field)
		case "timezone":
			fmt.Fprintf(&b, "- Field '%s' must be an IANA timezone, got '%v'\n", field, value)
		case "oneof", "weekday":
			fmt.Fprintf(&b, "- Field '%s' has invalid value '%v'\n", field, value)
		default:
			fmt.Fprintf(&b, "- Field '%s' failed validation: %s\n", field, fieldError.Tag())
		}
	}
	return &ConfigurationError{Message: "validation failed:\n" + b.String()}
}
