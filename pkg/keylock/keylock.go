// Package keylock provides mutual exclusion per string key, used to serialize
// work on a single mailbox across the watch manager and the sync consumer.
package keylock

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

type heldKey struct {
	locker *Locker
	key    string
}

func New() *Locker {
	return &Locker{locks: make(map[string]*entry)}
}

// Lock blocks until key is free or ctx is done. The returned context marks
// the key as held, so a nested Lock for the same key with that context
// returns immediately instead of deadlocking. The unlock func is idempotent.
func (l *Locker) Lock(ctx context.Context, key string) (context.Context, func(), error) {
	if Held(ctx, l, key) {
		return ctx, func() {}, nil
	}

	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		l.release(key, e)
		return ctx, func() {}, err
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			e.sem.Release(1)
			l.release(key, e)
		})
	}
	return context.WithValue(ctx, heldKey{locker: l, key: key}, true), unlock, nil
}

// Held reports whether ctx was returned by a Lock call for key on l.
func Held(ctx context.Context, l *Locker, key string) bool {
	held, _ := ctx.Value(heldKey{locker: l, key: key}).(bool)
	return held
}

func (l *Locker) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// Len returns the number of keys currently locked or waited on.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
