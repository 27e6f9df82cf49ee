package domain

import "time"

// FCMToken is a device registered to receive alerts about a mailbox.
type FCMToken struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	Mailbox    string    `json:"mailbox" gorm:"index;not null"`
	Token      string    `json:"-" gorm:"uniqueIndex;not null"` // Don't expose token in JSON
	DeviceInfo string    `json:"device_info"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (FCMToken) TableName() string {
	return "fcm_tokens"
}
