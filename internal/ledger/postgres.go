package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/whispersend/backend/internal/model"
)

type PostgresLedger struct {
	db    *sql.DB
	newID func() string
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db, newID: uuid.NewString}
}

func (l *PostgresLedger) Reserve(ctx context.Context, userID string, req ReserveRequest) (model.Reservation, error) {
	tx, err := l.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return model.Reservation{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var available int
	var blocked bool
	err = tx.QueryRowContext(ctx, `
		SELECT c.credits_available, u.is_blocked
		FROM user_credits c
		JOIN users u ON u.id = c.user_id
		WHERE c.user_id = $1
		FOR UPDATE OF c
	`, userID).Scan(&available, &blocked)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reservation{}, ErrUserNotFound
	}
	if err != nil {
		return model.Reservation{}, fmt.Errorf("lock credits: %w", err)
	}
	if blocked {
		return model.Reservation{}, ErrUserBlocked
	}
	if available <= 0 {
		return model.Reservation{}, ErrInsufficientCredits
	}

	if err := tx.QueryRowContext(ctx, `
		UPDATE user_credits
		SET credits_available = credits_available - 1,
		    credits_used = credits_used + 1,
		    updated_at = now()
		WHERE user_id = $1
		RETURNING credits_available
	`, userID).Scan(&available); err != nil {
		return model.Reservation{}, fmt.Errorf("take credit: %w", err)
	}

	id := l.newID()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, user_id, recipient_phone, message_text, sender_alias, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
	`, id, userID, req.Phone, req.Text, req.Alias); err != nil {
		return model.Reservation{}, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Reservation{}, err
	}
	return model.Reservation{MessageID: id, Available: available}, nil
}

func (l *PostgresLedger) Confirm(ctx context.Context, messageID string) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE messages
		SET status = 'sent', sent_at = now()
		WHERE id = $1 AND status = 'pending'
	`, messageID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrMessageNotPending
	}
	return nil
}

func (l *PostgresLedger) Refund(ctx context.Context, messageID string) error {
	tx, err := l.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var userID string
	var status string
	var refundedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT user_id, status, refunded_at
		FROM messages
		WHERE id = $1
		FOR UPDATE
	`, messageID).Scan(&userID, &status, &refundedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrMessageNotFound
	}
	if err != nil {
		return fmt.Errorf("lock message: %w", err)
	}

	if refundedAt.Valid {
		return tx.Commit()
	}
	if model.Status(status) != model.Pending {
		return ErrMessageNotPending
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE messages
		SET status = 'failed', refunded_at = now()
		WHERE id = $1
	`, messageID); err != nil {
		return fmt.Errorf("fail message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE user_credits
		SET credits_available = credits_available + 1,
		    credits_used = GREATEST(credits_used - 1, 0),
		    updated_at = now()
		WHERE user_id = $1
	`, userID); err != nil {
		return fmt.Errorf("return credit: %w", err)
	}

	return tx.Commit()
}

func (l *PostgresLedger) Credits(ctx context.Context, userID string) (model.Credits, error) {
	c := model.Credits{UserID: userID}
	err := l.db.QueryRowContext(ctx, `
		SELECT credits_available, credits_used, updated_at
		FROM user_credits
		WHERE user_id = $1
	`, userID).Scan(&c.Available, &c.Used, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Credits{}, ErrUserNotFound
	}
	if err != nil {
		return model.Credits{}, err
	}
	return c, nil
}

func (l *PostgresLedger) ListMessages(ctx context.Context, userID string, f model.MessageFilter) ([]model.Message, error) {
	f = normalizeFilter(f)

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, user_id, recipient_phone, message_text, sender_alias, status,
		       created_at, sent_at, refunded_at
		FROM messages
		WHERE user_id = $1
		  AND ($2 = ''
		       OR recipient_phone LIKE '%' || $2 || '%'
		       OR message_text ILIKE '%' || $2 || '%'
		       OR sender_alias ILIKE '%' || $2 || '%')
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, userID, escapeLike(f.Search), f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		var status string
		var sentAt, refundedAt sql.NullTime

		if err := rows.Scan(
			&m.ID,
			&m.UserID,
			&m.RecipientPhone,
			&m.Text,
			&m.SenderAlias,
			&status,
			&m.CreatedAt,
			&sentAt,
			&refundedAt,
		); err != nil {
			return nil, err
		}

		m.Status = model.Status(status)
		if sentAt.Valid {
			t := sentAt.Time
			m.SentAt = &t
		}
		if refundedAt.Valid {
			t := refundedAt.Time
			m.RefundedAt = &t
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (l *PostgresLedger) MessagesSince(ctx context.Context, userID string, since time.Time) ([]time.Time, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT created_at
		FROM messages
		WHERE user_id = $1 AND created_at >= $2
	`, userID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
