package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/whispersend/backend/internal/model"
)

const maxNameLen = 100

type PostgresStore struct {
	db    *sql.DB
	newID func() string
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, newID: uuid.NewString}
}

func (s *PostgresStore) Profile(ctx context.Context, userID string) (Profile, error) {
	p := Profile{UserID: userID}
	err := s.db.QueryRowContext(ctx, `
		SELECT email, full_name, is_admin, is_blocked
		FROM users
		WHERE id = $1
	`, userID).Scan(&p.Email, &p.FullName, &p.IsAdmin, &p.IsBlocked)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrUserNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (s *PostgresStore) UpdateName(ctx context.Context, userID, fullName string) error {
	fullName = strings.TrimSpace(fullName)
	if n := utf8.RuneCountInString(fullName); n == 0 || n > maxNameLen {
		return ErrInvalidName
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET full_name = $2
		WHERE id = $1
	`, userID, fullName)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) ActivePackages(ctx context.Context) ([]model.Package, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, quantity, price, is_active
		FROM packages
		WHERE is_active = TRUE
		ORDER BY price ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Package
	for rows.Next() {
		var p model.Package
		if err := rows.Scan(&p.ID, &p.Name, &p.Quantity, &p.Price, &p.Active); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Purchase records a completed purchase and credits the package quantity in
// one transaction.
func (s *PostgresStore) Purchase(ctx context.Context, userID, packageID string, method model.PaymentMethod) (model.Purchase, error) {
	if method != model.PaymentPix && method != model.PaymentCard {
		return model.Purchase{}, ErrInvalidPaymentMethod
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Purchase{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var name string
	var quantity int
	var price int64
	err = tx.QueryRowContext(ctx, `
		SELECT name, quantity, price
		FROM packages
		WHERE id = $1 AND is_active = TRUE
	`, packageID).Scan(&name, &quantity, &price)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Purchase{}, ErrPackageNotFound
	}
	if err != nil {
		return model.Purchase{}, fmt.Errorf("load package: %w", err)
	}

	p := model.Purchase{
		ID:            s.newID(),
		UserID:        userID,
		PackageID:     packageID,
		PackageName:   name,
		AmountPaid:    price,
		PaymentMethod: method,
		PaymentStatus: "completed",
	}
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO purchases (id, user_id, package_id, amount_paid, payment_status, payment_method)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, p.ID, userID, packageID, price, p.PaymentStatus, string(method)).Scan(&p.CreatedAt); err != nil {
		return model.Purchase{}, fmt.Errorf("insert purchase: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE user_credits
		SET credits_available = credits_available + $2,
		    updated_at = now()
		WHERE user_id = $1
	`, userID, quantity)
	if err != nil {
		return model.Purchase{}, fmt.Errorf("add credits: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return model.Purchase{}, err
	} else if n == 0 {
		return model.Purchase{}, ErrUserNotFound
	}

	if err := tx.Commit(); err != nil {
		return model.Purchase{}, err
	}
	return p, nil
}

func (s *PostgresStore) Purchases(ctx context.Context, userID string) ([]model.Purchase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.user_id, p.package_id, COALESCE(k.name, ''), p.amount_paid,
		       p.payment_method, p.payment_status, p.created_at
		FROM purchases p
		LEFT JOIN packages k ON k.id = p.package_id
		WHERE p.user_id = $1
		ORDER BY p.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Purchase
	for rows.Next() {
		var p model.Purchase
		var method string
		var created time.Time
		if err := rows.Scan(
			&p.ID,
			&p.UserID,
			&p.PackageID,
			&p.PackageName,
			&p.AmountPaid,
			&method,
			&p.PaymentStatus,
			&created,
		); err != nil {
			return nil, err
		}
		p.PaymentMethod = model.PaymentMethod(method)
		p.CreatedAt = created
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UserStats(ctx context.Context, search string) ([]model.UserStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.email, u.full_name, u.is_admin, u.is_blocked,
		       COALESCE(c.credits_available, 0), COALESCE(c.credits_used, 0),
		       (SELECT count(*) FROM messages m WHERE m.user_id = u.id AND m.status = 'sent')
		FROM users u
		LEFT JOIN user_credits c ON c.user_id = u.id
		WHERE $1 = '' OR u.email ILIKE '%' || $1 || '%' OR u.full_name ILIKE '%' || $1 || '%'
		ORDER BY u.created_at DESC
	`, escapeLike(strings.TrimSpace(search)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.UserStats
	for rows.Next() {
		var u model.UserStats
		if err := rows.Scan(
			&u.ID,
			&u.Email,
			&u.FullName,
			&u.IsAdmin,
			&u.IsBlocked,
			&u.Available,
			&u.Used,
			&u.MessagesSent,
		); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddCredits(ctx context.Context, userID string, amount int) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_credits (user_id, credits_available)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET credits_available = user_credits.credits_available + EXCLUDED.credits_available,
		    updated_at = now()
	`, userID, amount)
	return err
}

func (s *PostgresStore) SetBlocked(ctx context.Context, userID string, blocked bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_blocked = $2
		WHERE id = $1
	`, userID, blocked)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
