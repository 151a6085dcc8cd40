package sync

import (
	"errors"
	"strings"

	"magnifiq/internal/store"
)

// errorCategory buckets a remote failure for user-facing reporting
type errorCategory string

const (
	categoryDNS       errorCategory = "dns"
	categoryTimeout   errorCategory = "timeout"
	categorySSL       errorCategory = "ssl"
	categoryAuth      errorCategory = "auth"
	categoryRateLimit errorCategory = "rate_limit"
	categoryNotFound  errorCategory = "not_found"
	categoryServer    errorCategory = "server"
	categoryUnknown   errorCategory = "unknown"
)

// categorizeError determines the failure category from typed errors where
// available, falling back to message patterns.
func categorizeError(err error) errorCategory {
	var authErr *store.AuthError
	if errors.As(err, &authErr) {
		return categoryAuth
	}
	var platformErr *store.PlatformError
	if errors.As(err, &platformErr) {
		switch {
		case platformErr.StatusCode == 429:
			return categoryRateLimit
		case platformErr.StatusCode == 404:
			return categoryNotFound
		case platformErr.StatusCode >= 500:
			return categoryServer
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no such host") || strings.Contains(msg, "dns"):
		return categoryDNS
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return categoryTimeout
	case strings.Contains(msg, "certificate") || strings.Contains(msg, "tls") || strings.Contains(msg, "ssl"):
		return categorySSL
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid token") || strings.Contains(msg, "access token"):
		return categoryAuth
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") || strings.Contains(msg, "throttled"):
		return categoryRateLimit
	case strings.Contains(msg, "not found"):
		return categoryNotFound
	case strings.Contains(msg, "internal server error") || strings.Contains(msg, "bad gateway") || strings.Contains(msg, "service unavailable"):
		return categoryServer
	default:
		return categoryUnknown
	}
}

// FriendlyMessage maps a remote failure to the sentence shown on the
// connection record. Unmatched failures get the generic reconnect advice.
func FriendlyMessage(err error) string {
	switch categorizeError(err) {
	case categoryDNS:
		return "We could not find your store's address. Please check the store domain and try again."
	case categoryTimeout:
		return "Your store took too long to respond. Please try again in a few minutes."
	case categorySSL:
		return "We could not establish a secure connection to your store. Please try again later."
	case categoryAuth:
		return "Your store connection has expired. Please reconnect your store to continue syncing."
	case categoryRateLimit:
		return "Your store's API is rate limiting us right now. The sync will retry automatically."
	case categoryNotFound:
		return "The requested resource was not found on your store. It may have been removed."
	case categoryServer:
		return "Your store platform is having temporary issues. The sync will retry automatically."
	default:
		return "Something went wrong while syncing your store. Please try again, or reconnect the store if the problem persists."
	}
}
