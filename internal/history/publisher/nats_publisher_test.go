package publisher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	historyusecase "mailwatch-backend/internal/history/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	subject string
	payload []byte
	msgID   string
}

func (c *capture) Publish(_ context.Context, subject string, payload []byte, msgID string) error {
	c.subject, c.payload, c.msgID = subject, payload, msgID
	return nil
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "mailbox.jane_doe_at_example_com.synced", Subject("Jane.Doe@Example.com"))
}

func TestPublishSynced(t *testing.T) {
	c := &capture{}
	p := NewSyncPublisher(c)

	event := historyusecase.SyncEvent{
		Mailbox:   "a@example.com",
		HistoryID: 1005,
		Changes:   2,
		SyncedAt:  time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.PublishSynced(context.Background(), event))

	assert.Equal(t, "mailbox.a_at_example_com.synced", c.subject)
	assert.Equal(t, "synced|a@example.com|1005|false", c.msgID)

	var got historyusecase.SyncEvent
	require.NoError(t, json.Unmarshal(c.payload, &got))
	assert.Equal(t, event, got)
}
