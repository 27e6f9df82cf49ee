package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	historyusecase "mailwatch-backend/internal/history/usecase"
	"mailwatch-backend/pkg/natsjs"
)

// StreamPublisher is the part of the JetStream publisher used here.
type StreamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, msgID string) error
}

// SyncPublisher emits mailbox.<token>.synced events.
type SyncPublisher struct {
	js StreamPublisher
}

func NewSyncPublisher(js StreamPublisher) *SyncPublisher {
	return &SyncPublisher{js: js}
}

func (p *SyncPublisher) PublishSynced(ctx context.Context, event historyusecase.SyncEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal sync event: %w", err)
	}
	msgID := fmt.Sprintf("synced|%s|%d|%t", event.Mailbox, event.HistoryID, event.Resync)
	return p.js.Publish(ctx, Subject(event.Mailbox), payload, msgID)
}

// Subject maps a mailbox address to a single NATS subject token.
func Subject(mailbox string) string {
	token := strings.NewReplacer(".", "_", "@", "_at_", "*", "_", ">", "_", " ", "_").Replace(strings.ToLower(mailbox))
	return fmt.Sprintf("%s.%s.synced", natsjs.SubjectPrefix, token)
}
