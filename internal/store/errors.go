package store

import (
	"errors"
	"fmt"
)

// ConfigError means a platform or one of its credentials is missing. It
// fails fast and is never retried.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("store config error for %q: %s", e.Key, e.Reason)
}

// PlatformError wraps an HTTP or API-level failure from a store platform
type PlatformError struct {
	Platform   string
	StatusCode int
	Message    string
	Err        error
}

func (e *PlatformError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("platform %s returned status %d: %s", e.Platform, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("platform %s request failed: %s", e.Platform, e.Message)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// Temporary reports whether the failure is worth a queue-level retry
func (e *PlatformError) Temporary() bool {
	if e.StatusCode == 429 || e.StatusCode >= 500 {
		return true
	}
	return e.StatusCode == 0 // network-level failure
}

// AuthError means a token was rejected by the platform. It is not retried
// automatically; the connection needs a manual reconnect.
type AuthError struct {
	Platform string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("platform %s authentication failed: %s", e.Platform, e.Message)
}

// IsAuthError reports whether err is an authentication failure
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
