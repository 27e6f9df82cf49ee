package domain

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// Label ids the watch subscribes to.
const (
	LabelInbox   = "INBOX"
	LabelUnread  = "UNREAD"
	LabelStarred = "STARRED"
)

var DefaultEventCategories = []string{LabelInbox, LabelUnread, LabelStarred}

type WatchRequest struct {
	TopicName string
	LabelIDs  []string
}

type WatchResponse struct {
	HistoryID  uint64
	Expiration time.Time
}

type ChangeKind string

const (
	ChangeMessageAdded   ChangeKind = "message_added"
	ChangeMessageDeleted ChangeKind = "message_deleted"
	ChangeLabelsAdded    ChangeKind = "labels_added"
	ChangeLabelsRemoved  ChangeKind = "labels_removed"
)

// MessageMeta is the metadata kept for one provider message.
type MessageMeta struct {
	ID         string
	ThreadID   string
	Subject    string
	FromName   string
	FromEmail  string
	Snippet    string
	LabelIDs   []string
	ReceivedAt time.Time
}

// ChangeRecord is one unit of mailbox change reported by the provider.
// Message is set for ChangeMessageAdded; LabelIDs for label changes.
type ChangeRecord struct {
	HistoryID uint64
	Kind      ChangeKind
	MessageID string
	LabelIDs  []string
	Message   *MessageMeta
}

// ChangeBatch is the ordered delta since a cursor and the cursor it ends at.
type ChangeBatch struct {
	Records   []ChangeRecord
	HistoryID uint64
}

// MailProvider is the mail API the subscription lifecycle runs against.
// FetchChanges returns ErrCursorExpired when since is no longer valid.
type MailProvider interface {
	Watch(ctx context.Context, ts oauth2.TokenSource, req WatchRequest) (*WatchResponse, error)
	Stop(ctx context.Context, ts oauth2.TokenSource) error
	FetchChanges(ctx context.Context, ts oauth2.TokenSource, since uint64) (*ChangeBatch, error)
	ListMessages(ctx context.Context, ts oauth2.TokenSource, fn func(MessageMeta) error) (uint64, error)
}
