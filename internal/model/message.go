package model

import "time"

type Status string

const (
	Pending Status = "pending"
	Sent    Status = "sent"
	Failed  Status = "failed"
)

// DefaultAlias is used when the sender leaves the alias blank.
const DefaultAlias = "an anonymous admirer"

type Message struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	RecipientPhone string     `json:"recipient_phone"`
	Text           string     `json:"message_text"`
	SenderAlias    string     `json:"sender_alias"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	RefundedAt     *time.Time `json:"refunded_at,omitempty"`
}

// MessageFilter narrows a history listing. Search matches the phone as a
// substring and the text or alias case-insensitively.
type MessageFilter struct {
	Search string
	Limit  int
	Offset int
}

type DailyCount struct {
	Day   string `json:"date"`
	Count int    `json:"count"`
}
