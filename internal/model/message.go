package model

import "time"

type MessageStatus string

const (
	StatusQueued    MessageStatus = "queued"
	StatusSent      MessageStatus = "sent"
	StatusFailed    MessageStatus = "failed"
	StatusDelivered MessageStatus = "delivered"
)

func (s MessageStatus) String() string {
	return string(s)
}

func (s MessageStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusSent, StatusFailed, StatusDelivered:
		return true
	}
	return false
}

// Message is a queued broadcast SMS persisted in the messages table.
type Message struct {
	ID                string        `db:"id"                  json:"id"`
	SchoolID          int64         `db:"school_id"           json:"school_id"`
	Phone             string        `db:"phone"               json:"phone"`
	Text              string        `db:"text"                json:"text"`
	Segments          int           `db:"segments"            json:"segments"`
	Status            MessageStatus `db:"status"              json:"status"`
	ProviderMessageID string        `db:"provider_message_id" json:"provider_message_id,omitempty"`
	CreatedAt         time.Time     `db:"created_at"          json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at"          json:"updated_at"`
}
