package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	credentialdomain "mailwatch-backend/internal/credential/domain"
	"mailwatch-backend/internal/credential/repository"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// CredentialStore hands out OAuth credentials per mailbox. Only the store
// writes tokens back; the rest of the service just reads them.
type CredentialStore interface {
	// Get returns ErrCredentialNotFound when the mailbox has no usable token.
	Get(ctx context.Context, email string) (*credentialdomain.Credential, error)
	// TokenSource refreshes cred as needed and persists refreshed tokens.
	TokenSource(ctx context.Context, cred *credentialdomain.Credential) oauth2.TokenSource
	Save(ctx context.Context, email string, token *oauth2.Token) error
}

type credentialStore struct {
	repo   repository.TokenRepository
	config *oauth2.Config
	now    func() time.Time
}

func NewCredentialStore(repo repository.TokenRepository, clientID, clientSecret string) CredentialStore {
	return &credentialStore{
		repo: repo,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
		},
		now: time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *credentialStore) Get(ctx context.Context, email string) (*credentialdomain.Credential, error) {
	email = normalizeEmail(email)
	row, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}
	if row == nil {
		return nil, credentialdomain.ErrCredentialNotFound
	}

	token, err := credentialdomain.DecodeTokens(row.Tokens)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", credentialdomain.ErrCredentialNotFound, err)
	}
	if token.RefreshToken == "" && !token.Expiry.IsZero() && !token.Expiry.After(s.now()) {
		return nil, fmt.Errorf("%w: access token expired and no refresh token", credentialdomain.ErrCredentialNotFound)
	}

	return &credentialdomain.Credential{Email: email, Token: token}, nil
}

func (s *credentialStore) TokenSource(ctx context.Context, cred *credentialdomain.Credential) oauth2.TokenSource {
	return &notifyTokenSource{
		src:     s.config.TokenSource(ctx, cred.Token),
		current: cred.Token,
		callback: func(t *oauth2.Token) error {
			return s.Save(context.WithoutCancel(ctx), cred.Email, t)
		},
	}
}

func (s *credentialStore) Save(ctx context.Context, email string, token *oauth2.Token) error {
	encoded, err := credentialdomain.EncodeTokens(token)
	if err != nil {
		return fmt.Errorf("failed to encode tokens: %w", err)
	}
	return s.repo.Save(ctx, &credentialdomain.GmailToken{
		Email:     normalizeEmail(email),
		Tokens:    encoded,
		UpdatedAt: s.now().UTC(),
	})
}

// notifyTokenSource reports every token the wrapped source mints so it can
// be written back.
type notifyTokenSource struct {
	mu       sync.Mutex
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback func(*oauth2.Token) error
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.AccessToken == t.AccessToken {
		return t, nil
	}
	// Google omits the refresh token on refresh responses.
	if t.RefreshToken == "" && s.current != nil {
		t.RefreshToken = s.current.RefreshToken
	}
	s.current = t
	if s.callback != nil {
		if err := s.callback(t); err != nil {
			log.Printf("[Credential] Failed to persist refreshed token: %v", err)
		}
	}
	return t, nil
}
