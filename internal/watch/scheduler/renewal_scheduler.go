package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	credentialdomain "mailwatch-backend/internal/credential/domain"
	watchdomain "mailwatch-backend/internal/watch/domain"
	"mailwatch-backend/internal/watch/repository"
	"mailwatch-backend/internal/watch/usecase"

	"golang.org/x/sync/errgroup"
)

// DegradedNotifier is told once when a mailbox's sync becomes degraded.
type DegradedNotifier interface {
	NotifyDegraded(ctx context.Context, sub *watchdomain.Subscription) error
}

// CredentialChecker reports whether a mailbox has usable tokens.
type CredentialChecker interface {
	Get(ctx context.Context, email string) (*credentialdomain.Credential, error)
}

type Config struct {
	Interval      time.Duration
	Window        time.Duration
	Concurrency   int
	DegradedAfter int
}

// RenewalResult is the outcome of one mailbox in a renewal pass.
type RenewalResult struct {
	Mailbox    string    `json:"email"`
	Success    bool      `json:"success"`
	Stale      bool      `json:"stale"`
	HistoryID  uint64    `json:"historyId,omitempty"`
	Expiration time.Time `json:"expiration,omitempty"`
	ErrorKind  string    `json:"errorKind,omitempty"`
	Error      string    `json:"error,omitempty"`
	Degraded   bool      `json:"degraded,omitempty"`
}

// RenewalScheduler re-registers subscriptions before the provider lets them
// lapse.
type RenewalScheduler struct {
	subRepo     repository.SubscriptionRepository
	watch       usecase.WatchUsecase
	credentials CredentialChecker
	notifier    DegradedNotifier
	config      Config
	onResync    func(mailbox string)
	now         func() time.Time
	stopChan    chan struct{}
	stopOnce    sync.Once
	done        chan struct{}
}

func NewRenewalScheduler(
	subRepo repository.SubscriptionRepository,
	watch usecase.WatchUsecase,
	credentials CredentialChecker,
	notifier DegradedNotifier,
	config Config,
) *RenewalScheduler {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.Window <= 0 {
		config.Window = 24 * time.Hour
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 8
	}
	if config.DegradedAfter <= 0 {
		config.DegradedAfter = 3
	}
	return &RenewalScheduler{
		subRepo:     subRepo,
		watch:       watch,
		credentials: credentials,
		notifier:    notifier,
		config:      config,
		now:         time.Now,
		stopChan:    make(chan struct{}),
	}
}

// OnResync registers a callback for mailboxes whose lapsed subscription was
// re-registered and now need a full resync.
func (s *RenewalScheduler) OnResync(fn func(mailbox string)) {
	s.onResync = fn
}

// Start begins the scheduler loop
func (s *RenewalScheduler) Start() {
	log.Printf("[Renewal] Starting renewal scheduler (interval: %s, window: %s)", s.config.Interval, s.config.Window)

	s.done = make(chan struct{})
	go func() {
		defer close(s.done)

		// Run immediately on start
		s.runOnce()

		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runOnce()
			case <-s.stopChan:
				log.Println("[Renewal] Scheduler stopped")
				return
			}
		}
	}()
}

// Stop cancels the current pass and returns once the loop has exited, so
// no renewal outlives the caller.
func (s *RenewalScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	if s.done != nil {
		<-s.done
	}
}

func (s *RenewalScheduler) runOnce() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	if _, err := s.RunRenewalPass(ctx); err != nil {
		log.Printf("[Renewal] Pass failed: %v", err)
	}
}

// RunRenewalPass renews every subscription expiring within the window. One
// mailbox failing never stops the others; the error is only for a failed scan.
func (s *RenewalScheduler) RunRenewalPass(ctx context.Context) ([]RenewalResult, error) {
	now := s.now()
	subs, err := s.subRepo.ListExpiring(ctx, now.Add(s.config.Window))
	if err != nil {
		return nil, err
	}
	results := make([]RenewalResult, len(subs))
	if len(subs) == 0 {
		return results, nil
	}

	log.Printf("[Renewal] Found %d subscriptions expiring before %s", len(subs), now.Add(s.config.Window).Format(time.RFC3339))

	var g errgroup.Group
	g.SetLimit(s.config.Concurrency)
	for i, sub := range subs {
		g.Go(func() error {
			results[i] = s.renew(ctx, sub, now)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	log.Printf("[Renewal] Pass complete: %d renewed, %d failed", len(results)-failed, failed)
	return results, nil
}

func (s *RenewalScheduler) renew(ctx context.Context, sub *watchdomain.Subscription, now time.Time) RenewalResult {
	result := RenewalResult{
		Mailbox: sub.Email,
		Stale:   sub.IsStale(now),
	}

	if sub.AwaitingCredential() && !s.hasCredential(ctx, sub.Email) {
		result.Degraded = true
		result.ErrorKind = sub.LastErrorKind
		result.Error = sub.LastError
		return result
	}

	res, err := s.watch.RegisterWatch(ctx, sub.Email)
	if err == nil {
		result.Success = true
		result.HistoryID = res.Stored.HistoryID
		result.Expiration = res.Stored.Expiration
		if res.Stored.ResyncRequired && s.onResync != nil {
			s.onResync(sub.Email)
		}
		return result
	}

	result.ErrorKind = watchdomain.ErrorKind(err)
	result.Error = err.Error()
	log.Printf("[Renewal] Failed to renew %s (%s): %v", sub.Email, result.ErrorKind, err)

	updated, ferr := s.subRepo.RecordFailure(ctx, sub.Email, result.ErrorKind, err.Error())
	if ferr != nil {
		log.Printf("[Renewal] Error recording failure for %s: %v", sub.Email, ferr)
		return result
	}

	// Missing credentials cannot recover without the user, so they degrade
	// at once; anything else degrades after repeated failures on a lapsed
	// subscription.
	degrade := errors.Is(err, watchdomain.ErrCredentialMissing) ||
		(result.Stale && updated.FailureCount >= s.config.DegradedAfter)
	if !degrade {
		return result
	}

	changed, derr := s.subRepo.MarkDegraded(ctx, sub.Email)
	if derr != nil {
		log.Printf("[Renewal] Error marking %s degraded: %v", sub.Email, derr)
		return result
	}
	result.Degraded = true
	if changed && s.notifier != nil {
		updated.Status = watchdomain.StatusDegraded
		if nerr := s.notifier.NotifyDegraded(ctx, updated); nerr != nil {
			log.Printf("[Renewal] Error notifying degraded sync for %s: %v", sub.Email, nerr)
		}
	}
	return result
}

// hasCredential is false only when the tokens are known to be gone; a failed
// lookup lets the renewal run and report its own error.
func (s *RenewalScheduler) hasCredential(ctx context.Context, email string) bool {
	if s.credentials == nil {
		return false
	}
	_, err := s.credentials.Get(ctx, email)
	return !errors.Is(err, credentialdomain.ErrCredentialNotFound)
}
