package ai

import (
	"errors"
	"fmt"
)

// ConfigError means a feature, driver or credential is missing. It fails
// fast and is never retried.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("ai config error for %q: %s", e.Key, e.Reason)
}

// ValidationError means a request or a provider response was malformed.
// It is raised immediately and not retried within the same attempt.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "ai validation error: " + e.Reason
}

// ProviderError wraps an HTTP or API-level failure from an AI vendor
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s returned status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s request failed: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Temporary reports whether the failure is worth a queue-level retry
func (e *ProviderError) Temporary() bool {
	if e.StatusCode == 429 || e.StatusCode >= 500 {
		return true
	}
	return e.StatusCode == 0 // network-level failure
}

// IsConfigError reports whether err is a configuration error
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
