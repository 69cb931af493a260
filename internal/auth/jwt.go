// Package auth verifies the bearer tokens issued by the hosted identity
// provider and keeps track of sessions that were signed out server-side.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/whispersend/backend/internal/cache"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrSessionRevoked = errors.New("session revoked")
	ErrSessionIdle    = errors.New("session expired due to inactivity")
)

// activity is recorded at most this often per session.
const touchEvery = 5 * time.Second

// Claims is the subset of the provider's token we rely on. The user id is
// the standard subject claim.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

type Session struct {
	UserID    string
	Email     string
	SessionID string
	Token     string
	ExpiresAt time.Time
}

type Verifier struct {
	secret  []byte
	revoked cache.Revocations

	activity cache.Activity
	idle     time.Duration
	now      func() time.Time
}

func NewVerifier(secret []byte, revoked cache.Revocations) *Verifier {
	return &Verifier{secret: secret, revoked: revoked, now: time.Now}
}

// WithIdleTimeout signs sessions out once they go unused for longer than
// idle. A zero idle disables the check.
func (v *Verifier) WithIdleTimeout(activity cache.Activity, idle time.Duration) *Verifier {
	v.activity = activity
	v.idle = idle
	return v
}

func (v *Verifier) Verify(ctx context.Context, token string) (Session, error) {
	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return Session{}, ErrInvalidToken
	}

	s := Session{
		UserID:    claims.Subject,
		Email:     claims.Email,
		SessionID: claims.ID,
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if s.SessionID == "" {
		sum := sha256.Sum256([]byte(token))
		s.SessionID = hex.EncodeToString(sum[:])
	}

	revoked, err := v.revoked.IsRevoked(ctx, s.SessionID)
	if err != nil {
		return Session{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return Session{}, ErrSessionRevoked
	}

	if v.activity != nil && v.idle > 0 {
		issuedAt := v.now()
		if claims.IssuedAt != nil {
			issuedAt = claims.IssuedAt.Time
		}
		if err := v.checkIdle(ctx, s, issuedAt); err != nil {
			return Session{}, err
		}
	}
	return s, nil
}

func (v *Verifier) checkIdle(ctx context.Context, s Session, issuedAt time.Time) error {
	now := v.now()

	last, seen, err := v.activity.LastSeen(ctx, s.SessionID)
	if err != nil {
		return fmt.Errorf("check activity: %w", err)
	}
	if !seen {
		last = issuedAt
	}

	if now.Sub(last) > v.idle {
		if err := v.Revoke(ctx, s); err != nil {
			slog.Warn("idle session revoke failed", "user_id", s.UserID, "err", err)
		}
		slog.Info("session expired due to inactivity", "user_id", s.UserID, "last_seen", last)
		return ErrSessionIdle
	}

	if !seen || now.Sub(last) >= touchEvery {
		if err := v.activity.Touch(ctx, s.SessionID, now, v.idle); err != nil {
			slog.Warn("session activity update failed", "user_id", s.UserID, "err", err)
		}
	}
	return nil
}

// Revoke signs the session out until its token would have expired anyway.
func (v *Verifier) Revoke(ctx context.Context, s Session) error {
	return v.revoked.Revoke(ctx, s.SessionID, s.ExpiresAt)
}

// Issue mints a token the way the identity provider does. Used by tooling
// and tests.
func Issue(userID, email string, secret []byte, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
		},
		Email: email,
	})

	return token.SignedString(secret)
}

type sessionKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}
