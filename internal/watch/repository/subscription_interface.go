package repository

import (
	"context"
	"time"

	watchdomain "mailwatch-backend/internal/watch/domain"
)

// SubscriptionRepository persists gmail_watch rows. Cursor and expiry writes
// are conditional on the row's previously read state and return
// ErrConcurrentUpdate when another writer got there first.
type SubscriptionRepository interface {
	// FindByEmail returns nil, nil when the mailbox has no subscription.
	FindByEmail(ctx context.Context, email string) (*watchdomain.Subscription, error)
	Create(ctx context.Context, sub *watchdomain.Subscription) error
	UpdateWatch(ctx context.Context, email string, expectedUpdatedAt time.Time, update watchdomain.WatchUpdate) error
	AdvanceCursor(ctx context.Context, email string, expectedHistoryID uint64, expectedUpdatedAt time.Time, next uint64, now time.Time) error
	ListExpiring(ctx context.Context, before time.Time) ([]*watchdomain.Subscription, error)
	ListAll(ctx context.Context) ([]*watchdomain.Subscription, error)
	RecordFailure(ctx context.Context, email, kind, lastError string) (*watchdomain.Subscription, error)
	// MarkDegraded returns true only for the call that changed the status.
	MarkDegraded(ctx context.Context, email string) (bool, error)
	SetResyncRequired(ctx context.Context, email string, required bool) error
	Delete(ctx context.Context, email string) error
}
