package oddsfeed

import (
	"errors"
	"strings"
)

// Sentinel errors for branching with errors.Is
var (
	ErrQuotaExceeded       = errors.New("daily provider quota exceeded")
	ErrProviderUnavailable = errors.New("odds provider unavailable")
	ErrMalformedOddsData   = errors.New("malformed odds data")
	ErrCircuitOpen         = errors.New("circuit breaker open")
)

// Error codes
const (
	ErrCodeQuotaExceeded        = "quota_exceeded"
	ErrCodeRateLimited          = "rate_limited"
	ErrCodeAuthenticationFailed = "authentication_failed"
	ErrCodeNotFound             = "not_found"
	ErrCodeInvalidData          = "invalid_data"
	ErrCodeNetworkError         = "network_error"
	ErrCodeServerError          = "server_error"
)

// FeedError represents errors from odds provider operations
type FeedError struct {
	Source  string // Provider name
	Code    string // Error code (e.g., "quota_exceeded")
	Message string
	Err     error
}

func (e *FeedError) Error() string {
	if e.Err != nil {
		return e.Source + ": " + e.Code + ": " + e.Message + " (" + e.Err.Error() + ")"
	}
	return e.Source + ": " + e.Code + ": " + e.Message
}

func (e *FeedError) Unwrap() error {
	return e.Err
}

// Is maps codes onto the sentinel taxonomy
func (e *FeedError) Is(target error) bool {
	switch target {
	case ErrQuotaExceeded:
		return e.Code == ErrCodeQuotaExceeded
	case ErrMalformedOddsData:
		return e.Code == ErrCodeInvalidData
	case ErrProviderUnavailable:
		switch e.Code {
		case ErrCodeRateLimited, ErrCodeAuthenticationFailed, ErrCodeNotFound,
			ErrCodeNetworkError, ErrCodeServerError:
			return true
		}
	}
	return false
}

// NewFeedError creates a new provider error
func NewFeedError(source, code, message string, err error) *FeedError {
	return &FeedError{Source: source, Code: code, Message: message, Err: err}
}

// redactedError hides a secret in a wrapped error's text; transport
// errors from net/http carry the full request URL
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, secret string) error {
	if err == nil || secret == "" {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), secret, "REDACTED"), err: err}
}
