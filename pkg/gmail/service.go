package gmail

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	watchdomain "mailwatch-backend/internal/watch/domain"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	user          = "me"
	pageSize      = 500
	filterInclude = "include"
)

var historyTypes = []string{"messageAdded", "messageDeleted", "labelAdded", "labelRemoved"}

var metadataHeaders = []string{"From", "Subject", "Date"}

// Service implements watchdomain.MailProvider over the Gmail REST API.
type Service struct {
	opts []option.ClientOption
}

func NewService(opts ...option.ClientOption) *Service {
	return &Service{opts: opts}
}

// gmailService creates a Gmail client authorized by ts.
func (s *Service) gmailService(ctx context.Context, ts oauth2.TokenSource) (*gmail.Service, error) {
	client := oauth2.NewClient(ctx, ts)
	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, s.opts...)
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return srv, nil
}

// Watch registers push notifications for the mailbox on req.TopicName.
// Registering again replaces the previous watch.
func (s *Service) Watch(ctx context.Context, ts oauth2.TokenSource, req watchdomain.WatchRequest) (*watchdomain.WatchResponse, error) {
	srv, err := s.gmailService(ctx, ts)
	if err != nil {
		return nil, err
	}

	resp, err := srv.Users.Watch(user, &gmail.WatchRequest{
		TopicName:         req.TopicName,
		LabelIds:          req.LabelIDs,
		LabelFilterAction: filterInclude,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to watch mailbox: %w", err)
	}

	return &watchdomain.WatchResponse{
		HistoryID:  resp.HistoryId,
		Expiration: time.UnixMilli(resp.Expiration).UTC(),
	}, nil
}

// Stop stops push notifications for the mailbox
func (s *Service) Stop(ctx context.Context, ts oauth2.TokenSource) error {
	srv, err := s.gmailService(ctx, ts)
	if err != nil {
		return err
	}
	if err := srv.Users.Stop(user).Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to stop mailbox watch: %w", err)
	}
	return nil
}

// FetchChanges lists every history record after since. Nothing is returned
// unless all pages were read. A 404 means since is older than Gmail keeps.
func (s *Service) FetchChanges(ctx context.Context, ts oauth2.TokenSource, since uint64) (*watchdomain.ChangeBatch, error) {
	srv, err := s.gmailService(ctx, ts)
	if err != nil {
		return nil, err
	}

	batch := &watchdomain.ChangeBatch{HistoryID: since}
	call := srv.Users.History.List(user).
		StartHistoryId(since).
		HistoryTypes(historyTypes...).
		MaxResults(pageSize)
	err = call.Pages(ctx, func(page *gmail.ListHistoryResponse) error {
		if page.HistoryId > batch.HistoryID {
			batch.HistoryID = page.HistoryId
		}
		batch.Records = append(batch.Records, historyToRecords(page.History)...)
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: history %d: %v", watchdomain.ErrCursorExpired, since, err)
		}
		return nil, fmt.Errorf("unable to list history: %w", err)
	}

	for i := range batch.Records {
		rec := &batch.Records[i]
		if rec.Kind != watchdomain.ChangeMessageAdded {
			continue
		}
		meta, err := s.getMetadata(ctx, srv, rec.MessageID)
		if err != nil {
			if isNotFound(err) {
				// Deleted before we could read it.
				rec.Kind = watchdomain.ChangeMessageDeleted
				continue
			}
			return nil, fmt.Errorf("unable to get message %s: %w", rec.MessageID, err)
		}
		rec.Message = meta
		rec.LabelIDs = meta.LabelIDs
	}

	return batch, nil
}

// ListMessages calls fn for every message outside spam and trash and
// returns the mailbox history id read before listing started.
func (s *Service) ListMessages(ctx context.Context, ts oauth2.TokenSource, fn func(watchdomain.MessageMeta) error) (uint64, error) {
	srv, err := s.gmailService(ctx, ts)
	if err != nil {
		return 0, err
	}

	profile, err := srv.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("unable to get profile: %w", err)
	}

	count := 0
	err = srv.Users.Messages.List(user).MaxResults(pageSize).Pages(ctx, func(page *gmail.ListMessagesResponse) error {
		for _, m := range page.Messages {
			meta, err := s.getMetadata(ctx, srv, m.Id)
			if err != nil {
				if isNotFound(err) {
					continue
				}
				return fmt.Errorf("unable to get message %s: %w", m.Id, err)
			}
			if err := fn(*meta); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Printf("[Gmail] Listed %d messages at history %d", count, profile.HistoryId)
	return profile.HistoryId, nil
}

func (s *Service) getMetadata(ctx context.Context, srv *gmail.Service, id string) (*watchdomain.MessageMeta, error) {
	msg, err := srv.Users.Messages.Get(user, id).
		Format("metadata").
		MetadataHeaders(metadataHeaders...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return convertMessage(msg), nil
}

func historyToRecords(history []*gmail.History) []watchdomain.ChangeRecord {
	var records []watchdomain.ChangeRecord
	for _, h := range history {
		for _, added := range h.MessagesAdded {
			if added.Message == nil {
				continue
			}
			records = append(records, watchdomain.ChangeRecord{
				HistoryID: h.Id,
				Kind:      watchdomain.ChangeMessageAdded,
				MessageID: added.Message.Id,
				LabelIDs:  added.Message.LabelIds,
			})
		}
		for _, deleted := range h.MessagesDeleted {
			if deleted.Message == nil {
				continue
			}
			records = append(records, watchdomain.ChangeRecord{
				HistoryID: h.Id,
				Kind:      watchdomain.ChangeMessageDeleted,
				MessageID: deleted.Message.Id,
			})
		}
		for _, la := range h.LabelsAdded {
			if la.Message == nil {
				continue
			}
			records = append(records, watchdomain.ChangeRecord{
				HistoryID: h.Id,
				Kind:      watchdomain.ChangeLabelsAdded,
				MessageID: la.Message.Id,
				LabelIDs:  la.LabelIds,
			})
		}
		for _, lr := range h.LabelsRemoved {
			if lr.Message == nil {
				continue
			}
			records = append(records, watchdomain.ChangeRecord{
				HistoryID: h.Id,
				Kind:      watchdomain.ChangeLabelsRemoved,
				MessageID: lr.Message.Id,
				LabelIDs:  lr.LabelIds,
			})
		}
	}
	return records
}

func convertMessage(msg *gmail.Message) *watchdomain.MessageMeta {
	meta := &watchdomain.MessageMeta{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		LabelIDs: msg.LabelIds,
	}
	if msg.InternalDate > 0 {
		meta.ReceivedAt = time.UnixMilli(msg.InternalDate).UTC()
	}
	if msg.Payload == nil {
		return meta
	}

	var h mail.Header
	for _, kv := range msg.Payload.Headers {
		h.Add(kv.Name, kv.Value)
	}

	if subject, err := h.Subject(); err == nil {
		meta.Subject = subject
	} else {
		meta.Subject = h.Get("Subject")
	}

	if addrs, err := h.AddressList("From"); err == nil && len(addrs) > 0 {
		meta.FromName = addrs[0].Name
		meta.FromEmail = strings.ToLower(addrs[0].Address)
	} else {
		meta.FromEmail = strings.ToLower(strings.TrimSpace(h.Get("From")))
	}

	if meta.ReceivedAt.IsZero() {
		if date, err := h.Date(); err == nil {
			meta.ReceivedAt = date.UTC()
		}
	}
	return meta
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
