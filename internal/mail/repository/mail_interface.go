package repository

import (
	"context"
	"time"

	maildomain "mailwatch-backend/internal/mail/domain"
	watchdomain "mailwatch-backend/internal/watch/domain"
)

// MailRepository is the mailbox store. Every write is keyed by the provider
// message id, so replaying the same records leaves the same state.
type MailRepository interface {
	// ApplyChanges applies records in order inside one transaction.
	ApplyChanges(ctx context.Context, mailbox string, records []watchdomain.ChangeRecord) error
	UpsertMail(ctx context.Context, mailbox string, meta *watchdomain.MessageMeta) error
	BulkImport(ctx context.Context, mailbox string, messages []watchdomain.MessageMeta) error
	// PruneNotSeenSince deletes mails of mailbox not written since before.
	PruneNotSeenSince(ctx context.Context, mailbox string, before time.Time) (int64, error)
	DeleteMailbox(ctx context.Context, mailbox string) error
	FindByProviderID(ctx context.Context, mailbox, providerMessageID string) (*maildomain.Mail, error)
	ListByMailbox(ctx context.Context, mailbox string, limit, offset int) ([]*maildomain.Mail, int64, error)
	Now() time.Time
}
