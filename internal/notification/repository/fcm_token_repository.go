package repository

import (
	"context"
	"time"

	notificationdomain "mailwatch-backend/internal/notification/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FCMTokenRepository defines the interface for FCM token operations
type FCMTokenRepository interface {
	SaveToken(ctx context.Context, mailbox, token, deviceInfo string) error
	GetTokensByMailbox(ctx context.Context, mailbox string) ([]notificationdomain.FCMToken, error)
	DeleteToken(ctx context.Context, token string) error
	DeleteTokenForMailbox(ctx context.Context, mailbox, token string) (bool, error)
}

type fcmTokenRepository struct {
	db *gorm.DB
}

// NewFCMTokenRepository creates a new instance of fcmTokenRepository
func NewFCMTokenRepository(db *gorm.DB) FCMTokenRepository {
	return &fcmTokenRepository{
		db: db,
	}
}

// SaveToken saves or updates an FCM token (atomic upsert)
func (r *fcmTokenRepository) SaveToken(ctx context.Context, mailbox, token, deviceInfo string) error {
	now := time.Now().UTC()
	fcmToken := &notificationdomain.FCMToken{
		ID:         uuid.New().String(),
		Mailbox:    mailbox,
		Token:      token,
		DeviceInfo: deviceInfo,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// A device moving to another mailbox takes its token along.
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"mailbox", "device_info", "updated_at"}),
	}).Create(fcmToken).Error
}

func (r *fcmTokenRepository) GetTokensByMailbox(ctx context.Context, mailbox string) ([]notificationdomain.FCMToken, error) {
	var tokens []notificationdomain.FCMToken
	if err := r.db.WithContext(ctx).Where("mailbox = ?", mailbox).Find(&tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}

func (r *fcmTokenRepository) DeleteToken(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).Where("token = ?", token).Delete(&notificationdomain.FCMToken{}).Error
}

func (r *fcmTokenRepository) DeleteTokenForMailbox(ctx context.Context, mailbox, token string) (bool, error) {
	result := r.db.WithContext(ctx).Where("mailbox = ? AND token = ?", mailbox, token).Delete(&notificationdomain.FCMToken{})
	return result.RowsAffected > 0, result.Error
}
