package model

import "time"

type Credits struct {
	UserID    string    `json:"user_id"`
	Available int       `json:"credits_available"`
	Used      int       `json:"credits_used"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reservation is what the ledger hands back after atomically creating a
// pending message and taking one credit for it.
type Reservation struct {
	MessageID string `json:"message_id"`
	Available int    `json:"new_credits"`
}
