package repository

import (
	"context"

	credentialdomain "mailwatch-backend/internal/credential/domain"
)

// TokenRepository reads and writes gmail_tokens rows.
type TokenRepository interface {
	// FindByEmail returns nil, nil when no row exists.
	FindByEmail(ctx context.Context, email string) (*credentialdomain.GmailToken, error)
	Save(ctx context.Context, token *credentialdomain.GmailToken) error
	Delete(ctx context.Context, email string) error
}
