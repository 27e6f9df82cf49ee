package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Labels is a provider label id set stored as a JSON array.
type Labels []string

// Value implements driver.Valuer
func (l Labels) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (l *Labels) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*l = Labels{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported labels value %T", value)
	}
	if len(raw) == 0 {
		*l = Labels{}
		return nil
	}
	return json.Unmarshal(raw, l)
}

func (l Labels) Has(id string) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

// Add returns the sorted union of l and ids.
func (l Labels) Add(ids ...string) Labels {
	set := make(map[string]struct{}, len(l)+len(ids))
	for _, v := range l {
		set[v] = struct{}{}
	}
	for _, v := range ids {
		set[v] = struct{}{}
	}
	return fromSet(set)
}

// Remove returns the sorted l without ids.
func (l Labels) Remove(ids ...string) Labels {
	set := make(map[string]struct{}, len(l))
	for _, v := range l {
		set[v] = struct{}{}
	}
	for _, v := range ids {
		delete(set, v)
	}
	return fromSet(set)
}

func fromSet(set map[string]struct{}) Labels {
	out := make(Labels, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Sender is a correspondent of a mailbox, grouped into folders by the client.
type Sender struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	Mailbox    string    `json:"mailbox" gorm:"uniqueIndex:idx_senders_mailbox_email;not null"`
	Name       string    `json:"name"`
	Email      string    `json:"email" gorm:"uniqueIndex:idx_senders_mailbox_email;not null"`
	Domain     string    `json:"domain" gorm:"index"`
	FolderID   *string   `json:"folder_id,omitempty"`
	Subscribed bool      `json:"subscribed" gorm:"not null;default:true"`
	CreatedAt  time.Time `json:"created_at"`
}

// Mail is one message of a mailbox, keyed by the provider message id.
type Mail struct {
	ID                string    `json:"id" gorm:"primaryKey"`
	Mailbox           string    `json:"mailbox" gorm:"uniqueIndex:idx_mails_mailbox_message;not null"`
	ProviderMessageID string    `json:"provider_message_id" gorm:"uniqueIndex:idx_mails_mailbox_message;not null"`
	ThreadID          string    `json:"thread_id" gorm:"index"`
	SenderID          string    `json:"sender_id" gorm:"index"`
	Subject           string    `json:"subject"`
	Body              string    `json:"body" gorm:"type:text"`
	Read              bool      `json:"read"`
	Bookmarked        bool      `json:"bookmarked"`
	Labels            Labels    `json:"labels" gorm:"type:text"`
	ReceivedAt        time.Time `json:"received_at" gorm:"index"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
