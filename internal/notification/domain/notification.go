package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// GmailNotification is the payload Gmail publishes for a mailbox change.
type GmailNotification struct {
	EmailAddress string    `json:"emailAddress"`
	HistoryID    HistoryID `json:"historyId"`
}

// HistoryID accepts both a JSON number and a decimal string.
type HistoryID uint64

func (h *HistoryID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*h = 0
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid historyId %s: %w", string(b), err)
	}
	*h = HistoryID(v)
	return nil
}

// DecodeNotification parses a Gmail push payload.
func DecodeNotification(data []byte) (*GmailNotification, error) {
	var n GmailNotification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notification: %w", err)
	}
	n.EmailAddress = strings.ToLower(strings.TrimSpace(n.EmailAddress))
	if n.EmailAddress == "" {
		return nil, fmt.Errorf("notification has no emailAddress")
	}
	return &n, nil
}

// PushEnvelope is the body Pub/Sub posts to a push endpoint.
type PushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data"`
		MessageID  string            `json:"messageId"`
		Attributes map[string]string `json:"attributes"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}
