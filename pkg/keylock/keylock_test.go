package keylock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockSerializesSameKey(t *testing.T) {
	l := New()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, unlock, err := l.Lock(context.Background(), "a@example.com")
			require.NoError(t, err)
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, l.Len())
}

func TestLockDifferentKeysDoNotBlock(t *testing.T) {
	l := New()
	_, unlockA, err := l.Lock(context.Background(), "a@example.com")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, unlockB, err := l.Lock(ctx, "b@example.com")
	require.NoError(t, err)
	unlockB()
}

func TestLockReentrantThroughContext(t *testing.T) {
	l := New()
	ctx, unlock, err := l.Lock(context.Background(), "a@example.com")
	require.NoError(t, err)
	defer unlock()

	assert.True(t, Held(ctx, l, "a@example.com"))
	assert.False(t, Held(ctx, l, "b@example.com"))

	_, nested, err := l.Lock(ctx, "a@example.com")
	require.NoError(t, err)
	nested()

	// The outer lock is still held after the nested unlock.
	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = l.Lock(short, "a@example.com")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLockHonorsContext(t *testing.T) {
	l := New()
	_, unlock, err := l.Lock(context.Background(), "a@example.com")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = l.Lock(ctx, "a@example.com")
	assert.ErrorIs(t, err, context.Canceled)

	unlock()
	unlock()
	assert.Equal(t, 0, l.Len())
}
