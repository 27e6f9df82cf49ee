package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	credentialdomain "mailwatch-backend/internal/credential/domain"
	credentialusecase "mailwatch-backend/internal/credential/usecase"
	watchdomain "mailwatch-backend/internal/watch/domain"
	"mailwatch-backend/internal/watch/repository"
	"mailwatch-backend/pkg/keylock"
)

type Config struct {
	TopicName       string
	LabelIDs        []string
	ProviderTimeout time.Duration
}

type watchUsecase struct {
	subRepo     repository.SubscriptionRepository
	credentials credentialusecase.CredentialStore
	provider    watchdomain.MailProvider
	mailboxes   MailboxCleaner
	locks       *keylock.Locker
	config      Config
	now         func() time.Time
}

func NewWatchUsecase(
	subRepo repository.SubscriptionRepository,
	credentials credentialusecase.CredentialStore,
	provider watchdomain.MailProvider,
	mailboxes MailboxCleaner,
	locks *keylock.Locker,
	config Config,
) WatchUsecase {
	if len(config.LabelIDs) == 0 {
		config.LabelIDs = watchdomain.DefaultEventCategories
	}
	if config.ProviderTimeout <= 0 {
		config.ProviderTimeout = 30 * time.Second
	}
	return &watchUsecase{
		subRepo:     subRepo,
		credentials: credentials,
		provider:    provider,
		mailboxes:   mailboxes,
		locks:       locks,
		config:      config,
		now:         time.Now,
	}
}

func normalizeMailbox(mailbox string) string {
	return strings.ToLower(strings.TrimSpace(mailbox))
}

func (u *watchUsecase) RegisterWatch(ctx context.Context, mailbox string) (*WatchResult, error) {
	return u.register(ctx, normalizeMailbox(mailbox), false)
}

func (u *watchUsecase) ResetWatch(ctx context.Context, mailbox string) (*WatchResult, error) {
	return u.register(ctx, normalizeMailbox(mailbox), true)
}

func (u *watchUsecase) register(ctx context.Context, mailbox string, forceFresh bool) (*WatchResult, error) {
	ctx, unlock, err := u.locks.Lock(ctx, mailbox)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cred, err := u.credentials.Get(ctx, mailbox)
	if err != nil {
		if errors.Is(err, credentialdomain.ErrCredentialNotFound) {
			return nil, fmt.Errorf("%w: %v", watchdomain.ErrCredentialMissing, err)
		}
		return nil, err
	}

	existing, err := u.subRepo.FindByEmail(ctx, mailbox)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, u.config.ProviderTimeout)
	resp, err := u.provider.Watch(pctx, u.credentials.TokenSource(pctx, cred), watchdomain.WatchRequest{
		TopicName: u.config.TopicName,
		LabelIDs:  u.config.LabelIDs,
	})
	cancel()
	if err != nil {
		log.Printf("[Watch] Provider watch failed for %s: %v", mailbox, err)
		return nil, fmt.Errorf("%w: %v", watchdomain.ErrProviderRegistrationFailed, err)
	}

	now := u.now().UTC().Truncate(time.Microsecond)
	expiration := resp.Expiration.UTC().Truncate(time.Millisecond)
	result := &WatchResult{
		Mailbox:    mailbox,
		HistoryID:  resp.HistoryID,
		Expiration: expiration,
	}

	var want uint64
	if existing == nil {
		want = resp.HistoryID
		result.Fresh = true
		err = u.subRepo.Create(ctx, &watchdomain.Subscription{
			Email:      mailbox,
			HistoryID:  want,
			Expiration: expiration,
			Status:     watchdomain.StatusActive,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	} else {
		result.WasStale = existing.IsStale(now)
		update := watchdomain.WatchUpdate{
			HistoryID:      existing.HistoryID,
			Expiration:     expiration,
			ResyncRequired: existing.ResyncRequired,
			UpdatedAt:      now,
		}
		if forceFresh || result.WasStale || existing.ResyncRequired {
			result.Fresh = true
			if resp.HistoryID >= existing.HistoryID {
				update.HistoryID = resp.HistoryID
			} else {
				log.Printf("[Watch] Provider cursor %d behind stored %d for %s, keeping stored", resp.HistoryID, existing.HistoryID, mailbox)
			}
		}
		// Deltas between the lapsed cursor and the fresh one are unknown.
		if result.WasStale && !forceFresh {
			update.ResyncRequired = true
		}
		want = update.HistoryID
		if !existing.UpdatedAt.Before(now) {
			// Keep updated_at strictly increasing for the next CAS.
			update.UpdatedAt = existing.UpdatedAt.Add(time.Microsecond)
		}
		err = u.subRepo.UpdateWatch(ctx, mailbox, existing.UpdatedAt, update)
	}
	if err != nil {
		if errors.Is(err, watchdomain.ErrConcurrentUpdate) {
			return nil, fmt.Errorf("%w: %w", watchdomain.ErrPersistenceVerificationFailed, err)
		}
		return nil, fmt.Errorf("%w: %v", watchdomain.ErrPersistenceVerificationFailed, err)
	}

	stored, err := u.subRepo.FindByEmail(ctx, mailbox)
	if err != nil {
		return nil, fmt.Errorf("%w: read back: %v", watchdomain.ErrPersistenceVerificationFailed, err)
	}
	if stored == nil {
		return nil, fmt.Errorf("%w: row missing after write", watchdomain.ErrPersistenceVerificationFailed)
	}
	if stored.HistoryID != want || stored.Expiration.UnixMilli() != expiration.UnixMilli() {
		return nil, fmt.Errorf("%w: stored cursor %d expiry %s, wrote cursor %d expiry %s",
			watchdomain.ErrPersistenceVerificationFailed,
			stored.HistoryID, stored.Expiration.Format(time.RFC3339Nano),
			want, expiration.Format(time.RFC3339Nano))
	}
	result.Stored = stored

	log.Printf("[Watch] Registered %s: cursor=%d expiration=%s fresh=%t", mailbox, stored.HistoryID, expiration.Format(time.RFC3339), result.Fresh)
	return result, nil
}

func (u *watchUsecase) Deregister(ctx context.Context, mailbox string) error {
	mailbox = normalizeMailbox(mailbox)
	ctx, unlock, err := u.locks.Lock(ctx, mailbox)
	if err != nil {
		return err
	}
	defer unlock()

	existing, err := u.subRepo.FindByEmail(ctx, mailbox)
	if err != nil {
		return fmt.Errorf("failed to load subscription: %w", err)
	}
	if existing == nil {
		return watchdomain.ErrSubscriptionNotFound
	}

	if cred, err := u.credentials.Get(ctx, mailbox); err == nil {
		pctx, cancel := context.WithTimeout(ctx, u.config.ProviderTimeout)
		if err := u.provider.Stop(pctx, u.credentials.TokenSource(pctx, cred)); err != nil {
			log.Printf("[Watch] Provider stop failed for %s: %v", mailbox, err)
		}
		cancel()
	} else {
		log.Printf("[Watch] No credential for %s, skipping provider stop: %v", mailbox, err)
	}

	if err := u.subRepo.Delete(ctx, mailbox); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	if u.mailboxes != nil {
		if err := u.mailboxes.DeleteMailbox(ctx, mailbox); err != nil {
			return fmt.Errorf("failed to delete mailbox data: %w", err)
		}
	}
	log.Printf("[Watch] Deregistered %s", mailbox)
	return nil
}

func (u *watchUsecase) GetSubscription(ctx context.Context, mailbox string) (*watchdomain.Subscription, error) {
	sub, err := u.subRepo.FindByEmail(ctx, normalizeMailbox(mailbox))
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, watchdomain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (u *watchUsecase) ListSubscriptions(ctx context.Context) ([]*watchdomain.Subscription, error) {
	return u.subRepo.ListAll(ctx)
}
