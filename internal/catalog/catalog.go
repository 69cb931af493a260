// Package catalog covers everything around the send flow that the original
// dashboard read straight from its tables: credit packages, purchases,
// user flags and the admin operations on them.
package catalog

import (
	"context"
	"errors"

	"github.com/whispersend/backend/internal/model"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrPackageNotFound      = errors.New("package not found")
	ErrInvalidAmount        = errors.New("amount must be > 0")
	ErrInvalidPaymentMethod = errors.New("payment method must be pix or card")
	ErrInvalidName          = errors.New("full name must be 1 to 100 characters")
)

type Profile struct {
	UserID    string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	IsAdmin   bool   `json:"is_admin"`
	IsBlocked bool   `json:"is_blocked"`
}

type Store interface {
	Profile(ctx context.Context, userID string) (Profile, error)
	UpdateName(ctx context.Context, userID, fullName string) error

	ActivePackages(ctx context.Context) ([]model.Package, error)
	Purchase(ctx context.Context, userID, packageID string, method model.PaymentMethod) (model.Purchase, error)
	Purchases(ctx context.Context, userID string) ([]model.Purchase, error)

	// UserStats lists every user; search narrows by email or name, case-insensitively.
	UserStats(ctx context.Context, search string) ([]model.UserStats, error)
	AddCredits(ctx context.Context, userID string, amount int) error
	SetBlocked(ctx context.Context, userID string, blocked bool) error
}
