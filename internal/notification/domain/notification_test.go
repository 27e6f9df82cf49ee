package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeNotification(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    uint64
		wantErr bool
	}{
		{"string history id", `{"emailAddress":"User@Example.com","historyId":"9876543210"}`, 9876543210, false},
		{"numeric history id", `{"emailAddress":"user@example.com","historyId":1234}`, 1234, false},
		{"missing email", `{"historyId":"1"}`, 0, true},
		{"bad history id", `{"emailAddress":"user@example.com","historyId":"abc"}`, 0, true},
		{"not json", `nope`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := DecodeNotification([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "user@example.com", n.EmailAddress)
			assert.Equal(t, tt.want, uint64(n.HistoryID))
		})
	}
}

func TestPushEnvelopeDecodesBase64Data(t *testing.T) {
	body := `{"message":{"data":"eyJlbWFpbEFkZHJlc3MiOiJ1c2VyQGV4YW1wbGUuY29tIiwiaGlzdG9yeUlkIjoiNDIifQ==","messageId":"1"},"subscription":"projects/acme/subscriptions/gmail-sub"}`
	var env PushEnvelope
	require.NoError(t, json.Unmarshal([]byte(body), &env))

	n, err := DecodeNotification(env.Message.Data)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", n.EmailAddress)
	assert.Equal(t, uint64(42), uint64(n.HistoryID))
}
