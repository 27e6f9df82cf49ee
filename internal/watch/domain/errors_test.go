package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{fmt.Errorf("%w: no tokens", ErrCredentialMissing), false},
		{fmt.Errorf("%w: 404", ErrCursorExpired), false},
		{fmt.Errorf("%w: 503", ErrProviderRegistrationFailed), true},
		{fmt.Errorf("%w: row missing", ErrPersistenceVerificationFailed), true},
		{fmt.Errorf("%w: %w", ErrPersistenceVerificationFailed, ErrConcurrentUpdate), true},
		{context.DeadlineExceeded, true},
		{errors.New("boom"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryable(tt.err), "%v", tt.err)
	}
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", ErrorKind(nil))
	assert.Equal(t, "credential_missing", ErrorKind(fmt.Errorf("x: %w", ErrCredentialMissing)))
	assert.Equal(t, "cursor_expired", ErrorKind(ErrCursorExpired))
	assert.Equal(t, "internal", ErrorKind(errors.New("boom")))
}

func TestSubscriptionStaleness(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	sub := &Subscription{Expiration: now.Add(time.Hour)}

	assert.False(t, sub.IsStale(now))
	assert.True(t, sub.ExpiresWithin(now, 24*time.Hour))
	assert.False(t, sub.ExpiresWithin(now, 30*time.Minute))

	sub.Expiration = now
	assert.True(t, sub.IsStale(now))
}

func TestAwaitingCredential(t *testing.T) {
	sub := &Subscription{Status: StatusDegraded, LastErrorKind: "credential_missing"}
	assert.True(t, sub.AwaitingCredential())

	sub.LastErrorKind = "provider_registration_failed"
	assert.False(t, sub.AwaitingCredential())

	sub = &Subscription{Status: StatusActive, LastErrorKind: "credential_missing"}
	assert.False(t, sub.AwaitingCredential())
}
