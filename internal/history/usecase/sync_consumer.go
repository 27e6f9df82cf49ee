package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	credentialdomain "mailwatch-backend/internal/credential/domain"
	credentialusecase "mailwatch-backend/internal/credential/usecase"
	mailrepo "mailwatch-backend/internal/mail/repository"
	watchdomain "mailwatch-backend/internal/watch/domain"
	watchrepo "mailwatch-backend/internal/watch/repository"
	watchusecase "mailwatch-backend/internal/watch/usecase"
	"mailwatch-backend/pkg/keylock"
)

type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
	StateApplying State = "applying"
	StateError    State = "error"
)

// MailboxState is the consumer's view of one mailbox.
type MailboxState struct {
	State         State     `json:"state"`
	LastErrorKind string    `json:"lastErrorKind,omitempty"`
	LastError     string    `json:"lastError,omitempty"`
	LastSyncAt    time.Time `json:"lastSyncAt,omitempty"`
	Cycles        int       `json:"cycles"`
}

// SyncEvent describes a completed sync cycle.
type SyncEvent struct {
	Mailbox   string    `json:"email"`
	HistoryID uint64    `json:"historyId"`
	Changes   int       `json:"changes"`
	Resync    bool      `json:"resync"`
	SyncedAt  time.Time `json:"syncedAt"`
}

// EventPublisher announces completed syncs to other services.
type EventPublisher interface {
	PublishSynced(ctx context.Context, event SyncEvent) error
}

// SyncConsumer turns push notifications into applied mailbox deltas.
type SyncConsumer interface {
	// Notify schedules a sync cycle. It never blocks on the cycle itself.
	Notify(mailbox string, historyID uint64)
	State(mailbox string) MailboxState
	// Wait blocks until no cycle is running.
	Wait()
	// Shutdown cancels running cycles and waits for them.
	Shutdown()
}

type Config struct {
	FetchTimeout  time.Duration
	ResyncTimeout time.Duration
}

type worker struct {
	running bool
	pending bool
	state   MailboxState
}

type syncConsumer struct {
	subRepo     watchrepo.SubscriptionRepository
	mailRepo    mailrepo.MailRepository
	credentials credentialusecase.CredentialStore
	provider    watchdomain.MailProvider
	watch       watchusecase.WatchUsecase
	locks       *keylock.Locker
	publisher   EventPublisher
	config      Config
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	workers map[string]*worker
	wg      sync.WaitGroup
}

func NewSyncConsumer(
	subRepo watchrepo.SubscriptionRepository,
	mailRepo mailrepo.MailRepository,
	credentials credentialusecase.CredentialStore,
	provider watchdomain.MailProvider,
	watch watchusecase.WatchUsecase,
	locks *keylock.Locker,
	publisher EventPublisher,
	config Config,
) SyncConsumer {
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 30 * time.Second
	}
	if config.ResyncTimeout <= 0 {
		config.ResyncTimeout = 10 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &syncConsumer{
		subRepo:     subRepo,
		mailRepo:    mailRepo,
		credentials: credentials,
		provider:    provider,
		watch:       watch,
		locks:       locks,
		publisher:   publisher,
		config:      config,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		workers:     make(map[string]*worker),
	}
}

func (c *syncConsumer) Notify(mailbox string, historyID uint64) {
	mailbox = strings.ToLower(strings.TrimSpace(mailbox))
	if mailbox == "" {
		return
	}

	c.mu.Lock()
	w, ok := c.workers[mailbox]
	if !ok {
		w = &worker{state: MailboxState{State: StateIdle}}
		c.workers[mailbox] = w
	}
	if w.running {
		w.pending = true
		c.mu.Unlock()
		return
	}
	w.running = true
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(mailbox, historyID)
}

// run executes cycles until no notification arrived during the last one.
func (c *syncConsumer) run(mailbox string, hint uint64) {
	defer c.wg.Done()
	for {
		c.cycle(mailbox, hint)

		c.mu.Lock()
		w := c.workers[mailbox]
		if !w.pending || c.ctx.Err() != nil {
			w.running = false
			w.pending = false
			c.mu.Unlock()
			return
		}
		w.pending = false
		c.mu.Unlock()
		hint = 0
	}
}

func (c *syncConsumer) State(mailbox string) MailboxState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.workers[strings.ToLower(strings.TrimSpace(mailbox))]; ok {
		return w.state
	}
	return MailboxState{State: StateIdle}
}

func (c *syncConsumer) Wait() {
	c.wg.Wait()
}

func (c *syncConsumer) Shutdown() {
	c.cancel()
	c.wg.Wait()
}

func (c *syncConsumer) setState(mailbox string, state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.workers[mailbox].state.State = state
}

func (c *syncConsumer) fail(mailbox string, err error) {
	log.Printf("[HistorySync] %s: %v", mailbox, err)
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &c.workers[mailbox].state
	s.State = StateError
	s.LastErrorKind = watchdomain.ErrorKind(err)
	s.LastError = err.Error()
}

func (c *syncConsumer) succeed(mailbox string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &c.workers[mailbox].state
	s.State = StateIdle
	s.LastSyncAt = c.now().UTC()
	s.Cycles++
}

func (c *syncConsumer) cycle(mailbox string, hint uint64) {
	ctx, unlock, err := c.locks.Lock(c.ctx, mailbox)
	if err != nil {
		return
	}
	defer unlock()

	sub, err := c.subRepo.FindByEmail(ctx, mailbox)
	if err != nil {
		c.fail(mailbox, fmt.Errorf("%w: load subscription: %v", watchdomain.ErrFetchFailed, err))
		return
	}
	if sub == nil {
		log.Printf("[HistorySync] Ignoring notification for unknown mailbox %s", mailbox)
		return
	}
	if sub.ResyncRequired {
		// The registration that set the flag already stored a fresh cursor.
		c.resync(ctx, mailbox, sub.HistoryID, false)
		return
	}
	if sub.IsStale(c.now()) {
		c.fail(mailbox, fmt.Errorf("%w: expired at %s", watchdomain.ErrSubscriptionStale, sub.Expiration.Format(time.RFC3339)))
		return
	}
	if hint > 0 && hint <= sub.HistoryID {
		return
	}

	cred, err := c.credentials.Get(ctx, mailbox)
	if err != nil {
		if errors.Is(err, credentialdomain.ErrCredentialNotFound) {
			err = fmt.Errorf("%w: %v", watchdomain.ErrCredentialMissing, err)
		}
		c.fail(mailbox, err)
		return
	}

	c.setState(mailbox, StateFetching)
	fctx, cancel := context.WithTimeout(ctx, c.config.FetchTimeout)
	batch, err := c.provider.FetchChanges(fctx, c.credentials.TokenSource(fctx, cred), sub.HistoryID)
	timedOut := errors.Is(fctx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		switch {
		case errors.Is(err, watchdomain.ErrCursorExpired):
			c.fail(mailbox, err)
			if serr := c.subRepo.SetResyncRequired(ctx, mailbox, true); serr != nil {
				log.Printf("[HistorySync] Error flagging resync for %s: %v", mailbox, serr)
				return
			}
			c.resync(ctx, mailbox, 0, true)
		case timedOut || errors.Is(err, context.DeadlineExceeded):
			log.Printf("[HistorySync] Fetch timed out for %s, will retry on next notification", mailbox)
			c.setState(mailbox, StateIdle)
		default:
			c.fail(mailbox, fmt.Errorf("%w: %v", watchdomain.ErrFetchFailed, err))
		}
		return
	}

	c.setState(mailbox, StateApplying)
	if err := c.mailRepo.ApplyChanges(ctx, mailbox, batch.Records); err != nil {
		c.fail(mailbox, fmt.Errorf("%w: %v", watchdomain.ErrApplyFailed, err))
		return
	}

	if batch.HistoryID > sub.HistoryID {
		now := c.now().UTC().Truncate(time.Microsecond)
		if !sub.UpdatedAt.Before(now) {
			now = sub.UpdatedAt.Add(time.Microsecond)
		}
		if err := c.subRepo.AdvanceCursor(ctx, mailbox, sub.HistoryID, sub.UpdatedAt, batch.HistoryID, now); err != nil {
			// Changes stay applied; reapplying them next cycle is harmless.
			c.fail(mailbox, err)
			return
		}
	}

	log.Printf("[HistorySync] %s: applied %d changes, cursor %d -> %d", mailbox, len(batch.Records), sub.HistoryID, batch.HistoryID)
	c.succeed(mailbox)
	c.publish(ctx, SyncEvent{Mailbox: mailbox, HistoryID: max(batch.HistoryID, sub.HistoryID), Changes: len(batch.Records)})
}

// resync rebuilds the mailbox from a full listing. With reset the watch is
// registered again first; otherwise cursor must already be fresh. Either way
// the cursor precedes the snapshot so later deltas overlap it.
func (c *syncConsumer) resync(ctx context.Context, mailbox string, cursor uint64, reset bool) {
	log.Printf("[HistorySync] Resynchronizing %s (reset=%t)", mailbox, reset)
	c.setState(mailbox, StateFetching)

	if reset {
		res, err := c.watch.ResetWatch(ctx, mailbox)
		if err != nil {
			c.fail(mailbox, err)
			return
		}
		cursor = res.Stored.HistoryID
	}

	cred, err := c.credentials.Get(ctx, mailbox)
	if err != nil {
		c.fail(mailbox, fmt.Errorf("%w: %v", watchdomain.ErrCredentialMissing, err))
		return
	}

	rctx, cancel := context.WithTimeout(ctx, c.config.ResyncTimeout)
	defer cancel()

	start := c.mailRepo.Now()
	var pending []watchdomain.MessageMeta
	imported := 0
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := c.mailRepo.BulkImport(rctx, mailbox, pending); err != nil {
			return err
		}
		imported += len(pending)
		pending = pending[:0]
		return nil
	}

	_, err = c.provider.ListMessages(rctx, c.credentials.TokenSource(rctx, cred), func(m watchdomain.MessageMeta) error {
		pending = append(pending, m)
		if len(pending) >= 100 {
			c.setState(mailbox, StateApplying)
			return flush()
		}
		return nil
	})
	if err == nil {
		c.setState(mailbox, StateApplying)
		err = flush()
	}
	if err != nil {
		c.fail(mailbox, fmt.Errorf("%w: resync: %v", watchdomain.ErrFetchFailed, err))
		return
	}

	pruned, err := c.mailRepo.PruneNotSeenSince(ctx, mailbox, start)
	if err != nil {
		c.fail(mailbox, fmt.Errorf("%w: prune: %v", watchdomain.ErrApplyFailed, err))
		return
	}
	if err := c.subRepo.SetResyncRequired(ctx, mailbox, false); err != nil {
		c.fail(mailbox, err)
		return
	}

	log.Printf("[HistorySync] Resynchronized %s: %d imported, %d pruned, cursor %d", mailbox, imported, pruned, cursor)
	c.succeed(mailbox)
	c.publish(ctx, SyncEvent{Mailbox: mailbox, HistoryID: cursor, Changes: imported, Resync: true})
}

func (c *syncConsumer) publish(ctx context.Context, event SyncEvent) {
	if c.publisher == nil {
		return
	}
	event.SyncedAt = c.now().UTC()
	if err := c.publisher.PublishSynced(ctx, event); err != nil {
		log.Printf("[HistorySync] Error publishing sync event for %s: %v", event.Mailbox, err)
	}
}
