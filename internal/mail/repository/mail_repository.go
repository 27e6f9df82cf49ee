package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	maildomain "mailwatch-backend/internal/mail/domain"
	watchdomain "mailwatch-backend/internal/watch/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const importBatchSize = 100

type mailRepository struct {
	db *gorm.DB
}

// NewMailRepository creates a new instance of mailRepository
func NewMailRepository(db *gorm.DB) MailRepository {
	return &mailRepository{
		db: db,
	}
}

// Now returns the timestamp the repository stamps rows with.
func (r *mailRepository) Now() time.Time {
	return r.db.NowFunc()
}

func (r *mailRepository) ApplyChanges(ctx context.Context, mailbox string, records []watchdomain.ChangeRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.Now()
		for i := range records {
			if err := applyRecord(tx, mailbox, &records[i], now); err != nil {
				return fmt.Errorf("record %d (%s %s): %w", i, records[i].Kind, records[i].MessageID, err)
			}
		}
		return nil
	})
}

func applyRecord(tx *gorm.DB, mailbox string, rec *watchdomain.ChangeRecord, now time.Time) error {
	switch rec.Kind {
	case watchdomain.ChangeMessageAdded:
		meta := rec.Message
		if meta == nil {
			meta = &watchdomain.MessageMeta{ID: rec.MessageID, LabelIDs: rec.LabelIDs}
		}
		return upsertMessage(tx, mailbox, meta, now)
	case watchdomain.ChangeMessageDeleted:
		return tx.Where("mailbox = ? AND provider_message_id = ?", mailbox, rec.MessageID).
			Delete(&maildomain.Mail{}).Error
	case watchdomain.ChangeLabelsAdded, watchdomain.ChangeLabelsRemoved:
		var mail maildomain.Mail
		err := tx.Where("mailbox = ? AND provider_message_id = ?", mailbox, rec.MessageID).First(&mail).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Message predates the store; the next resync brings it in.
			return nil
		}
		if err != nil {
			return err
		}
		labels := mail.Labels.Add(rec.LabelIDs...)
		if rec.Kind == watchdomain.ChangeLabelsRemoved {
			labels = mail.Labels.Remove(rec.LabelIDs...)
		}
		return tx.Model(&maildomain.Mail{}).Where("id = ?", mail.ID).Updates(map[string]interface{}{
			"labels":     labels,
			"read":       !labels.Has(watchdomain.LabelUnread),
			"bookmarked": labels.Has(watchdomain.LabelStarred),
			"updated_at": now,
		}).Error
	}
	return fmt.Errorf("unknown change kind %q", rec.Kind)
}

func upsertMessage(tx *gorm.DB, mailbox string, meta *watchdomain.MessageMeta, now time.Time) error {
	senderID, err := upsertSender(tx, mailbox, meta, now)
	if err != nil {
		return err
	}

	labels := maildomain.Labels{}.Add(meta.LabelIDs...)
	mail := &maildomain.Mail{
		ID:                uuid.New().String(),
		Mailbox:           mailbox,
		ProviderMessageID: meta.ID,
		ThreadID:          meta.ThreadID,
		SenderID:          senderID,
		Subject:           meta.Subject,
		Body:              meta.Snippet,
		Read:              !labels.Has(watchdomain.LabelUnread),
		Bookmarked:        labels.Has(watchdomain.LabelStarred),
		Labels:            labels,
		ReceivedAt:        meta.ReceivedAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	// Atomic upsert: INSERT ... ON CONFLICT (mailbox, provider_message_id) DO UPDATE
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "mailbox"}, {Name: "provider_message_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"thread_id", "sender_id", "subject", "body", "read", "bookmarked", "labels", "received_at", "updated_at",
		}),
	}).Create(mail).Error
}

func upsertSender(tx *gorm.DB, mailbox string, meta *watchdomain.MessageMeta, now time.Time) (string, error) {
	email := strings.ToLower(strings.TrimSpace(meta.FromEmail))
	if email == "" {
		return "", nil
	}

	sender := &maildomain.Sender{
		ID:         uuid.New().String(),
		Mailbox:    mailbox,
		Name:       meta.FromName,
		Email:      email,
		Domain:     domainOf(email),
		Subscribed: true,
		CreatedAt:  now,
	}
	onConflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "mailbox"}, {Name: "email"}},
		DoNothing: true,
	}
	if sender.Name != "" {
		onConflict = clause.OnConflict{
			Columns:   onConflict.Columns,
			DoUpdates: clause.AssignmentColumns([]string{"name"}),
		}
	}
	if err := tx.Clauses(onConflict).Create(sender).Error; err != nil {
		return "", err
	}

	var stored maildomain.Sender
	if err := tx.Select("id").Where("mailbox = ? AND email = ?", mailbox, email).First(&stored).Error; err != nil {
		return "", err
	}
	return stored.ID, nil
}

func domainOf(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[i+1:]
	}
	return ""
}

func (r *mailRepository) UpsertMail(ctx context.Context, mailbox string, meta *watchdomain.MessageMeta) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsertMessage(tx, mailbox, meta, r.Now())
	})
}

// BulkImport upserts messages in batches, one transaction per batch.
func (r *mailRepository) BulkImport(ctx context.Context, mailbox string, messages []watchdomain.MessageMeta) error {
	for start := 0; start < len(messages); start += importBatchSize {
		end := start + importBatchSize
		if end > len(messages) {
			end = len(messages)
		}
		batch := messages[start:end]
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			now := r.Now()
			for i := range batch {
				if err := upsertMessage(tx, mailbox, &batch[i], now); err != nil {
					return fmt.Errorf("message %s: %w", batch[i].ID, err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *mailRepository) PruneNotSeenSince(ctx context.Context, mailbox string, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("mailbox = ? AND updated_at < ?", mailbox, before).
		Delete(&maildomain.Mail{})
	return result.RowsAffected, result.Error
}

func (r *mailRepository) DeleteMailbox(ctx context.Context, mailbox string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("mailbox = ?", mailbox).Delete(&maildomain.Mail{}).Error; err != nil {
			return err
		}
		return tx.Where("mailbox = ?", mailbox).Delete(&maildomain.Sender{}).Error
	})
}

func (r *mailRepository) FindByProviderID(ctx context.Context, mailbox, providerMessageID string) (*maildomain.Mail, error) {
	var mail maildomain.Mail
	err := r.db.WithContext(ctx).
		Where("mailbox = ? AND provider_message_id = ?", mailbox, providerMessageID).
		First(&mail).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &mail, nil
}

func (r *mailRepository) ListByMailbox(ctx context.Context, mailbox string, limit, offset int) ([]*maildomain.Mail, int64, error) {
	var total int64
	query := r.db.WithContext(ctx).Model(&maildomain.Mail{}).Where("mailbox = ?", mailbox)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}
	var mails []*maildomain.Mail
	err := r.db.WithContext(ctx).
		Where("mailbox = ?", mailbox).
		Order("received_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&mails).Error
	if err != nil {
		return nil, 0, err
	}
	return mails, total, nil
}
