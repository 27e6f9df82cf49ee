package repository

import (
	"context"
	"errors"

	credentialdomain "mailwatch-backend/internal/credential/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type tokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository creates a new instance of tokenRepository
func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{
		db: db,
	}
}

func (r *tokenRepository) FindByEmail(ctx context.Context, email string) (*credentialdomain.GmailToken, error) {
	var token credentialdomain.GmailToken
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &token, nil
}

// Save upserts the row keyed by email
func (r *tokenRepository) Save(ctx context.Context, token *credentialdomain.GmailToken) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"tokens", "updated_at"}),
	}).Create(token).Error
}

func (r *tokenRepository) Delete(ctx context.Context, email string) error {
	return r.db.WithContext(ctx).Where("email = ?", email).Delete(&credentialdomain.GmailToken{}).Error
}
