package cache

import (
	"context"
	"errors"
	"time"
)

var ErrNotHeld = errors.New("lock not held")

// Locker hands out short-lived exclusive tokens keyed by name. A holder
// that dies without releasing loses the token once the ttl runs out.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// Revocations records signed-out session ids until their tokens expire.
type Revocations interface {
	Revoke(ctx context.Context, sessionID string, until time.Time) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// Activity remembers when a session was last used. A record outlives its
// last touch by ttl at most.
type Activity interface {
	Touch(ctx context.Context, sessionID string, at time.Time, ttl time.Duration) error
	LastSeen(ctx context.Context, sessionID string) (time.Time, bool, error)
}
