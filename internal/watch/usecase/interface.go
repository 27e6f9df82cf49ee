package usecase

import (
	"context"
	"time"

	watchdomain "mailwatch-backend/internal/watch/domain"
)

// WatchResult is returned by a successful registration. HistoryID and
// Expiration are what the provider returned; Stored is the row read back.
// Renewing a live subscription keeps the stored cursor, so HistoryID can be
// ahead of Stored.HistoryID. Clients resume from Stored.HistoryID.
type WatchResult struct {
	Mailbox    string                    `json:"email"`
	HistoryID  uint64                    `json:"historyId"`
	Expiration time.Time                 `json:"expiration"`
	Stored     *watchdomain.Subscription `json:"stored"`
	// Fresh is true when the stored cursor was replaced by the provider's.
	Fresh bool `json:"fresh"`
	// WasStale is true when the previous registration had already lapsed.
	WasStale bool `json:"wasStale"`
}

// WatchUsecase owns the push-subscription lifecycle of a mailbox.
type WatchUsecase interface {
	RegisterWatch(ctx context.Context, mailbox string) (*WatchResult, error)
	// ResetWatch registers and always takes the provider's fresh cursor.
	ResetWatch(ctx context.Context, mailbox string) (*WatchResult, error)
	Deregister(ctx context.Context, mailbox string) error
	GetSubscription(ctx context.Context, mailbox string) (*watchdomain.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]*watchdomain.Subscription, error)
}

// MailboxCleaner removes stored mail of a deregistered mailbox.
type MailboxCleaner interface {
	DeleteMailbox(ctx context.Context, mailbox string) error
}
