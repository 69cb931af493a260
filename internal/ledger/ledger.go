// Package ledger is the authoritative store for credits and message records.
// It exposes the three operations the send workflow depends on (reserve,
// confirm, refund) plus the read paths the dashboard needs.
package ledger

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/whispersend/backend/internal/model"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrUserBlocked         = errors.New("user is blocked")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrMessageNotFound     = errors.New("message not found")
	ErrMessageNotPending   = errors.New("message is not pending")
)

type ReserveRequest struct {
	Phone string
	Text  string
	Alias string
}

type Ledger interface {
	// Reserve creates a pending message and takes one credit in a single step.
	Reserve(ctx context.Context, userID string, req ReserveRequest) (model.Reservation, error)
	// Confirm marks a pending message as sent. The credit stays consumed.
	Confirm(ctx context.Context, messageID string) error
	// Refund gives the credit back and fails the message. Refunding twice is a no-op.
	Refund(ctx context.Context, messageID string) error

	Credits(ctx context.Context, userID string) (model.Credits, error)
	ListMessages(ctx context.Context, userID string, f model.MessageFilter) ([]model.Message, error)
	MessagesSince(ctx context.Context, userID string, since time.Time) ([]time.Time, error)
}

// RPCError carries the text a remote procedure failed with. It is shown to
// users as is. Status is the gateway's HTTP status, or 0 when the procedure
// itself answered with a failure.
type RPCError struct {
	Op      string
	Status  int
	Message string
}

func (e *RPCError) Error() string {
	return e.Message
}

type accessTokenKey struct{}

// WithAccessToken attaches the caller's bearer token so remote backends can
// act on behalf of the user.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey{}, token)
}

func accessToken(ctx context.Context) string {
	v, _ := ctx.Value(accessTokenKey{}).(string)
	return v
}

func normalizeFilter(f model.MessageFilter) model.MessageFilter {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// IsPermanent reports whether a Confirm or Refund failure will fail the same
// way on every retry.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrMessageNotPending) || errors.Is(err, ErrMessageNotFound) {
		return true
	}
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	switch {
	case rpcErr.Status == 0:
		return true
	case rpcErr.Status == http.StatusUnauthorized,
		rpcErr.Status == http.StatusRequestTimeout,
		rpcErr.Status == http.StatusTooManyRequests:
		return false
	default:
		return rpcErr.Status >= 400 && rpcErr.Status < 500
	}
}
