package domain

import (
	"context"
	"errors"
)

var (
	ErrCredentialMissing             = errors.New("credential missing")
	ErrProviderRegistrationFailed    = errors.New("provider registration failed")
	ErrPersistenceVerificationFailed = errors.New("persistence verification failed")
	ErrCursorExpired                 = errors.New("cursor expired")
	ErrFetchFailed                   = errors.New("fetch failed")
	ErrApplyFailed                   = errors.New("apply failed")
	ErrSubscriptionStale             = errors.New("subscription stale")
	ErrSubscriptionNotFound          = errors.New("subscription not found")
	ErrConcurrentUpdate              = errors.New("concurrent update")
)

// IsRetryable reports whether err is transient. Missing credentials need the
// user to re-authorize, and an expired cursor needs a resync, so neither is.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrCredentialMissing), errors.Is(err, ErrCursorExpired):
		return false
	case errors.Is(err, ErrProviderRegistrationFailed),
		errors.Is(err, ErrPersistenceVerificationFailed),
		errors.Is(err, ErrFetchFailed),
		errors.Is(err, ErrApplyFailed),
		errors.Is(err, ErrConcurrentUpdate),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return false
}

// ErrorKind returns a stable short name for err, used in API responses,
// stored state and logs.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCredentialMissing):
		return "credential_missing"
	case errors.Is(err, ErrProviderRegistrationFailed):
		return "provider_registration_failed"
	case errors.Is(err, ErrPersistenceVerificationFailed):
		return "persistence_verification_failed"
	case errors.Is(err, ErrCursorExpired):
		return "cursor_expired"
	case errors.Is(err, ErrFetchFailed):
		return "fetch_failed"
	case errors.Is(err, ErrApplyFailed):
		return "apply_failed"
	case errors.Is(err, ErrSubscriptionStale):
		return "subscription_stale"
	case errors.Is(err, ErrSubscriptionNotFound):
		return "subscription_not_found"
	case errors.Is(err, ErrConcurrentUpdate):
		return "concurrent_update"
	}
	return "internal"
}
