package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	maildomain "mailwatch-backend/internal/mail/domain"
	watchdomain "mailwatch-backend/internal/watch/domain"
	"mailwatch-backend/pkg/database/dbtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const mailbox = "owner@example.com"

func newRepo(t *testing.T) (MailRepository, *gorm.DB) {
	db := dbtest.New(t, &maildomain.Sender{}, &maildomain.Mail{})
	return NewMailRepository(db), db
}

func added(historyID uint64, id, from string, labels ...string) watchdomain.ChangeRecord {
	return watchdomain.ChangeRecord{
		HistoryID: historyID,
		Kind:      watchdomain.ChangeMessageAdded,
		MessageID: id,
		Message: &watchdomain.MessageMeta{
			ID:         id,
			ThreadID:   "t-" + id,
			Subject:    "Subject " + id,
			FromName:   "Alice",
			FromEmail:  from,
			Snippet:    "hello",
			LabelIDs:   labels,
			ReceivedAt: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC),
		},
	}
}

type mailboxSnapshot struct {
	ID         string
	Labels     maildomain.Labels
	Read       bool
	Bookmarked bool
	SenderID   string
}

func snapshot(t *testing.T, db *gorm.DB) ([]mailboxSnapshot, int64) {
	t.Helper()
	var mails []maildomain.Mail
	require.NoError(t, db.Order("provider_message_id").Find(&mails).Error)
	out := make([]mailboxSnapshot, 0, len(mails))
	for _, m := range mails {
		out = append(out, mailboxSnapshot{m.ProviderMessageID, m.Labels, m.Read, m.Bookmarked, m.SenderID})
	}
	var senders int64
	require.NoError(t, db.Model(&maildomain.Sender{}).Count(&senders).Error)
	return out, senders
}

func TestApplyChangesIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo, db := newRepo(t)

	batch := []watchdomain.ChangeRecord{
		added(1001, "m1", "Alice@Example.com", "INBOX", "UNREAD"),
		added(1002, "m2", "alice@example.com", "INBOX"),
		added(1003, "m3", "bob@example.org", "INBOX"),
		{HistoryID: 1004, Kind: watchdomain.ChangeLabelsAdded, MessageID: "m1", LabelIDs: []string{"STARRED"}},
		{HistoryID: 1005, Kind: watchdomain.ChangeLabelsRemoved, MessageID: "m1", LabelIDs: []string{"UNREAD"}},
		{HistoryID: 1006, Kind: watchdomain.ChangeMessageDeleted, MessageID: "m3"},
	}

	require.NoError(t, repo.ApplyChanges(ctx, mailbox, batch))
	first, firstSenders := snapshot(t, db)

	require.NoError(t, repo.ApplyChanges(ctx, mailbox, batch))
	second, secondSenders := snapshot(t, db)

	assert.Equal(t, first, second)
	assert.Equal(t, firstSenders, secondSenders)

	require.Len(t, first, 2)
	m1 := first[0]
	assert.Equal(t, "m1", m1.ID)
	assert.Equal(t, maildomain.Labels{"INBOX", "STARRED"}, m1.Labels)
	assert.True(t, m1.Read)
	assert.True(t, m1.Bookmarked)
	assert.Equal(t, first[0].SenderID, first[1].SenderID, "same sender address maps to one sender row")
	assert.Equal(t, int64(2), firstSenders)
}

func TestApplyChangesIgnoresUnknownLabelTarget(t *testing.T) {
	repo, db := newRepo(t)
	err := repo.ApplyChanges(context.Background(), mailbox, []watchdomain.ChangeRecord{
		{Kind: watchdomain.ChangeLabelsAdded, MessageID: "missing", LabelIDs: []string{"STARRED"}},
	})
	require.NoError(t, err)
	mails, _ := snapshot(t, db)
	assert.Empty(t, mails)
}

func TestApplyChangesRollsBackOnError(t *testing.T) {
	repo, db := newRepo(t)
	err := repo.ApplyChanges(context.Background(), mailbox, []watchdomain.ChangeRecord{
		added(1, "m1", "a@example.com", "INBOX"),
		{Kind: "bogus", MessageID: "m2"},
	})
	require.Error(t, err)

	mails, senders := snapshot(t, db)
	assert.Empty(t, mails)
	assert.Zero(t, senders)
}

func TestBulkImportAndPrune(t *testing.T) {
	ctx := context.Background()
	repo, db := newRepo(t)

	require.NoError(t, repo.ApplyChanges(ctx, mailbox, []watchdomain.ChangeRecord{
		added(1, "gone", "a@example.com", "INBOX"),
	}))
	time.Sleep(2 * time.Millisecond)

	start := repo.Now()
	metas := make([]watchdomain.MessageMeta, 0, 150)
	for i := 0; i < 150; i++ {
		rec := added(uint64(i), fmt.Sprintf("bulk-%03d", i), "b@example.com", "INBOX")
		metas = append(metas, *rec.Message)
	}
	require.NoError(t, repo.BulkImport(ctx, mailbox, metas))

	pruned, err := repo.PruneNotSeenSince(ctx, mailbox, start)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	gone, err := repo.FindByProviderID(ctx, mailbox, "gone")
	require.NoError(t, err)
	assert.Nil(t, gone)

	list, total, err := repo.ListByMailbox(ctx, mailbox, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(150), total)
	assert.Len(t, list, 10)

	require.NoError(t, repo.DeleteMailbox(ctx, mailbox))
	mails, senders := snapshot(t, db)
	assert.Empty(t, mails)
	assert.Zero(t, senders)
}

func TestMailboxesAreIsolated(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	require.NoError(t, repo.UpsertMail(ctx, "a@example.com", added(1, "m1", "x@example.com").Message))
	require.NoError(t, repo.UpsertMail(ctx, "b@example.com", added(1, "m1", "x@example.com").Message))
	require.NoError(t, repo.DeleteMailbox(ctx, "a@example.com"))

	m, err := repo.FindByProviderID(ctx, "b@example.com", "m1")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.True(t, m.Read)
}
