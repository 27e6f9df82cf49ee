package domain

import "time"

type SubscriptionStatus string

const (
	StatusActive   SubscriptionStatus = "active"
	StatusDegraded SubscriptionStatus = "degraded"
)

// Subscription is the push-notification watch registered for one mailbox.
// HistoryID is the sync cursor and never moves backward.
type Subscription struct {
	Email          string             `json:"email" gorm:"primaryKey"`
	HistoryID      uint64             `json:"history_id" gorm:"not null"`
	Expiration     time.Time          `json:"expiration" gorm:"index;not null"`
	Status         SubscriptionStatus `json:"status" gorm:"type:varchar(16);not null;default:active"`
	FailureCount   int                `json:"failure_count" gorm:"not null;default:0"`
	LastError      string             `json:"last_error,omitempty" gorm:"type:text"`
	LastErrorKind  string             `json:"last_error_kind,omitempty" gorm:"type:varchar(48)"`
	ResyncRequired bool               `json:"resync_required" gorm:"not null;default:false"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "gmail_watch"
}

// IsStale reports whether the provider has stopped delivering notifications.
func (s *Subscription) IsStale(now time.Time) bool {
	return !now.Before(s.Expiration)
}

// AwaitingCredential reports whether the subscription was degraded because
// the user's tokens are gone. Only a new authorization can recover it.
func (s *Subscription) AwaitingCredential() bool {
	return s.Status == StatusDegraded && s.LastErrorKind == ErrorKind(ErrCredentialMissing)
}

// ExpiresWithin reports whether the subscription expires before now+window.
func (s *Subscription) ExpiresWithin(now time.Time, window time.Duration) bool {
	return !s.Expiration.After(now.Add(window))
}

// WatchUpdate carries the values written by a successful registration.
type WatchUpdate struct {
	HistoryID      uint64
	Expiration     time.Time
	ResyncRequired bool
	UpdatedAt      time.Time
}
