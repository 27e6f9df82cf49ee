package repository

import (
	"context"
	"errors"
	"time"

	watchdomain "mailwatch-backend/internal/watch/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new instance of subscriptionRepository
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{
		db: db,
	}
}

func (r *subscriptionRepository) FindByEmail(ctx context.Context, email string) (*watchdomain.Subscription, error) {
	var sub watchdomain.Subscription
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// Create inserts a new subscription. A row inserted concurrently for the
// same mailbox wins and the caller gets ErrConcurrentUpdate.
func (r *subscriptionRepository) Create(ctx context.Context, sub *watchdomain.Subscription) error {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(sub)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return watchdomain.ErrConcurrentUpdate
	}
	return nil
}

// UpdateWatch writes a new registration if the row still carries
// expectedUpdatedAt. A successful registration clears the failure state.
func (r *subscriptionRepository) UpdateWatch(ctx context.Context, email string, expectedUpdatedAt time.Time, update watchdomain.WatchUpdate) error {
	result := r.db.WithContext(ctx).Model(&watchdomain.Subscription{}).
		Where("email = ? AND updated_at = ?", email, expectedUpdatedAt).
		Updates(map[string]interface{}{
			"history_id":      update.HistoryID,
			"expiration":      update.Expiration,
			"resync_required": update.ResyncRequired,
			"status":          watchdomain.StatusActive,
			"failure_count":   0,
			"last_error":      "",
			"last_error_kind": "",
			"updated_at":      update.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return watchdomain.ErrConcurrentUpdate
	}
	return nil
}

// AdvanceCursor moves history_id forward from expectedHistoryID to next.
// It never moves the cursor backward.
func (r *subscriptionRepository) AdvanceCursor(ctx context.Context, email string, expectedHistoryID uint64, expectedUpdatedAt time.Time, next uint64, now time.Time) error {
	if next <= expectedHistoryID {
		return nil
	}
	result := r.db.WithContext(ctx).Model(&watchdomain.Subscription{}).
		Where("email = ? AND history_id = ? AND updated_at = ?", email, expectedHistoryID, expectedUpdatedAt).
		Updates(map[string]interface{}{
			"history_id": next,
			"updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return watchdomain.ErrConcurrentUpdate
	}
	return nil
}

func (r *subscriptionRepository) ListExpiring(ctx context.Context, before time.Time) ([]*watchdomain.Subscription, error) {
	var subs []*watchdomain.Subscription
	err := r.db.WithContext(ctx).
		Where("expiration <= ?", before).
		Order("expiration ASC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *subscriptionRepository) ListAll(ctx context.Context) ([]*watchdomain.Subscription, error) {
	var subs []*watchdomain.Subscription
	if err := r.db.WithContext(ctx).Order("email ASC").Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// RecordFailure bumps failure_count without touching updated_at, which only
// moves on registration and cursor advance.
func (r *subscriptionRepository) RecordFailure(ctx context.Context, email, kind, lastError string) (*watchdomain.Subscription, error) {
	result := r.db.WithContext(ctx).Model(&watchdomain.Subscription{}).
		Where("email = ?", email).
		UpdateColumns(map[string]interface{}{
			"failure_count":   gorm.Expr("failure_count + ?", 1),
			"last_error":      lastError,
			"last_error_kind": kind,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, watchdomain.ErrSubscriptionNotFound
	}
	return r.FindByEmail(ctx, email)
}

func (r *subscriptionRepository) MarkDegraded(ctx context.Context, email string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&watchdomain.Subscription{}).
		Where("email = ? AND status <> ?", email, watchdomain.StatusDegraded).
		UpdateColumn("status", watchdomain.StatusDegraded)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *subscriptionRepository) SetResyncRequired(ctx context.Context, email string, required bool) error {
	return r.db.WithContext(ctx).Model(&watchdomain.Subscription{}).
		Where("email = ?", email).
		UpdateColumn("resync_required", required).Error
}

func (r *subscriptionRepository) Delete(ctx context.Context, email string) error {
	return r.db.WithContext(ctx).Where("email = ?", email).Delete(&watchdomain.Subscription{}).Error
}
