// Package refund keeps reservations whose refund failed from being lost.
// Failed refunds are parked on a queue and retried by a periodic worker
// until the ledger accepts them or they run out of attempts.
package refund

import (
	"context"
	"time"
)

type Job struct {
	ID         string    `json:"id"`
	MessageID  string    `json:"message_id"`
	UserID     string    `json:"user_id"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	NextAt     time.Time `json:"next_at"`
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Due returns up to limit jobs whose NextAt is not after now, oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]Job, error)
	Ack(ctx context.Context, id string) error
	Retry(ctx context.Context, job Job, nextAt time.Time) error
	Len(ctx context.Context) (int64, error)
}
