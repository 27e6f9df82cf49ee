package repository

import (
	"context"
	"testing"
	"time"

	watchdomain "mailwatch-backend/internal/watch/domain"
	"mailwatch-backend/pkg/database/dbtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func newRepo(t *testing.T) SubscriptionRepository {
	db := dbtest.New(t, &watchdomain.Subscription{})
	return NewSubscriptionRepository(db)
}

func seed(t *testing.T, repo SubscriptionRepository, email string, historyID uint64, expiration time.Time) *watchdomain.Subscription {
	t.Helper()
	sub := &watchdomain.Subscription{
		Email:      email,
		HistoryID:  historyID,
		Expiration: expiration,
		Status:     watchdomain.StatusActive,
		CreatedAt:  baseTime,
		UpdatedAt:  baseTime,
	}
	require.NoError(t, repo.Create(context.Background(), sub))
	stored, err := repo.FindByEmail(context.Background(), email)
	require.NoError(t, err)
	require.NotNil(t, stored)
	return stored
}

func TestFindByEmailMissing(t *testing.T) {
	repo := newRepo(t)
	sub, err := repo.FindByEmail(context.Background(), "nobody@example.com")
	assert.NoError(t, err)
	assert.Nil(t, sub)
}

func TestCreateConflict(t *testing.T) {
	repo := newRepo(t)
	seed(t, repo, "a@example.com", 1000, baseTime.Add(7*24*time.Hour))

	err := repo.Create(context.Background(), &watchdomain.Subscription{
		Email:      "a@example.com",
		HistoryID:  5,
		Expiration: baseTime,
		Status:     watchdomain.StatusActive,
		UpdatedAt:  baseTime,
	})
	assert.ErrorIs(t, err, watchdomain.ErrConcurrentUpdate)

	stored, err := repo.FindByEmail(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), stored.HistoryID)
}

func TestUpdateWatchIsConditional(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	stored := seed(t, repo, "a@example.com", 1000, baseTime.Add(time.Hour))

	update := watchdomain.WatchUpdate{
		HistoryID:  1000,
		Expiration: baseTime.Add(7 * 24 * time.Hour),
		UpdatedAt:  baseTime.Add(time.Minute),
	}
	require.NoError(t, repo.UpdateWatch(ctx, "a@example.com", stored.UpdatedAt, update))

	// A second writer holding the old updated_at loses.
	err := repo.UpdateWatch(ctx, "a@example.com", stored.UpdatedAt, update)
	assert.ErrorIs(t, err, watchdomain.ErrConcurrentUpdate)

	after, err := repo.FindByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, update.Expiration.UnixMilli(), after.Expiration.UnixMilli())
	assert.True(t, after.UpdatedAt.Equal(update.UpdatedAt))
}

func TestUpdateWatchClearsFailureState(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	seed(t, repo, "a@example.com", 1000, baseTime)

	_, err := repo.RecordFailure(ctx, "a@example.com", "fetch_failed", "boom")
	require.NoError(t, err)
	_, err = repo.MarkDegraded(ctx, "a@example.com")
	require.NoError(t, err)

	stored, err := repo.FindByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	require.NoError(t, repo.UpdateWatch(ctx, "a@example.com", stored.UpdatedAt, watchdomain.WatchUpdate{
		HistoryID:  2000,
		Expiration: baseTime.Add(7 * 24 * time.Hour),
		UpdatedAt:  baseTime.Add(time.Minute),
	}))

	after, err := repo.FindByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, watchdomain.StatusActive, after.Status)
	assert.Equal(t, 0, after.FailureCount)
	assert.Empty(t, after.LastError)
	assert.Empty(t, after.LastErrorKind)
}

func TestAdvanceCursor(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	stored := seed(t, repo, "a@example.com", 1000, baseTime.Add(time.Hour))

	t.Run("never moves backward", func(t *testing.T) {
		require.NoError(t, repo.AdvanceCursor(ctx, "a@example.com", 1000, stored.UpdatedAt, 900, baseTime))
		after, err := repo.FindByEmail(ctx, "a@example.com")
		require.NoError(t, err)
		assert.Equal(t, uint64(1000), after.HistoryID)
	})

	t.Run("stale expectation loses", func(t *testing.T) {
		err := repo.AdvanceCursor(ctx, "a@example.com", 999, stored.UpdatedAt, 1100, baseTime)
		assert.ErrorIs(t, err, watchdomain.ErrConcurrentUpdate)
	})

	t.Run("advances", func(t *testing.T) {
		now := baseTime.Add(time.Minute)
		require.NoError(t, repo.AdvanceCursor(ctx, "a@example.com", 1000, stored.UpdatedAt, 1100, now))
		after, err := repo.FindByEmail(ctx, "a@example.com")
		require.NoError(t, err)
		assert.Equal(t, uint64(1100), after.HistoryID)
		assert.True(t, after.UpdatedAt.Equal(now))
	})
}

func TestListExpiring(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	seed(t, repo, "soon@example.com", 1, baseTime.Add(time.Hour))
	seed(t, repo, "stale@example.com", 1, baseTime.Add(-time.Hour))
	seed(t, repo, "later@example.com", 1, baseTime.Add(72*time.Hour))

	subs, err := repo.ListExpiring(ctx, baseTime.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "stale@example.com", subs[0].Email)
	assert.Equal(t, "soon@example.com", subs[1].Email)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFailureAndDegradation(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	stored := seed(t, repo, "a@example.com", 1, baseTime)

	for i := 1; i <= 3; i++ {
		sub, err := repo.RecordFailure(ctx, "a@example.com", "provider_registration_failed", "provider down")
		require.NoError(t, err)
		assert.Equal(t, i, sub.FailureCount)
		assert.Equal(t, "provider down", sub.LastError)
		assert.Equal(t, "provider_registration_failed", sub.LastErrorKind)
		assert.True(t, sub.UpdatedAt.Equal(stored.UpdatedAt), "failures must not move updated_at")
	}

	changed, err := repo.MarkDegraded(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkDegraded(ctx, "a@example.com")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = repo.RecordFailure(ctx, "missing@example.com", "internal", "x")
	assert.ErrorIs(t, err, watchdomain.ErrSubscriptionNotFound)
}

func TestResyncFlagAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	seed(t, repo, "a@example.com", 1, baseTime)

	require.NoError(t, repo.SetResyncRequired(ctx, "a@example.com", true))
	sub, err := repo.FindByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, sub.ResyncRequired)

	require.NoError(t, repo.Delete(ctx, "a@example.com"))
	sub, err = repo.FindByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Nil(t, sub)
}
