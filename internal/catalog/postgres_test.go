package catalog

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/whispersend/backend/internal/model"
)

func newStoreWithMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewPostgresStore(db)
	s.newID = func() string { return "p-1" }
	return s, mock
}

func TestProfile(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`SELECT email, full_name, is_admin, is_blocked\s+FROM users`).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"email", "full_name", "is_admin", "is_blocked"}).
			AddRow("a@b.c", "Ana", true, false))

	p, err := s.Profile(context.Background(), "u-1")
	require.NoError(t, err)
	require.Equal(t, Profile{UserID: "u-1", Email: "a@b.c", FullName: "Ana", IsAdmin: true}, p)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfile_NotFound(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`SELECT email, full_name, is_admin, is_blocked`).
		WithArgs("u-x").
		WillReturnError(sql.ErrNoRows)

	_, err := s.Profile(context.Background(), "u-x")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestActivePackages(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`FROM packages\s+WHERE is_active = TRUE\s+ORDER BY price ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "quantity", "price", "is_active"}).
			AddRow("k-1", "Starter", 5, 990, true).
			AddRow("k-2", "Plus", 20, 2990, true))

	got, err := s.ActivePackages(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, model.Package{ID: "k-1", Name: "Starter", Quantity: 5, Price: 990, Active: true}, got[0])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPurchase_Success(t *testing.T) {
	s, mock := newStoreWithMock(t)
	created := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT name, quantity, price\s+FROM packages`).
		WithArgs("k-1").
		WillReturnRows(sqlmock.NewRows([]string{"name", "quantity", "price"}).AddRow("Starter", 5, 990))
	mock.ExpectQuery(`INSERT INTO purchases`).
		WithArgs("p-1", "u-1", "k-1", int64(990), "completed", "pix").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectExec(`UPDATE user_credits\s+SET credits_available = credits_available \+ \$2`).
		WithArgs("u-1", 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p, err := s.Purchase(context.Background(), "u-1", "k-1", model.PaymentPix)
	require.NoError(t, err)
	require.Equal(t, "p-1", p.ID)
	require.Equal(t, "Starter", p.PackageName)
	require.Equal(t, int64(990), p.AmountPaid)
	require.Equal(t, created, p.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPurchase_InactivePackage(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM packages`).
		WithArgs("k-9").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := s.Purchase(context.Background(), "u-1", "k-9", model.PaymentCard)
	require.ErrorIs(t, err, ErrPackageNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPurchase_NoCreditsRowRollsBack(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM packages`).
		WithArgs("k-1").
		WillReturnRows(sqlmock.NewRows([]string{"name", "quantity", "price"}).AddRow("Starter", 5, 990))
	mock.ExpectQuery(`INSERT INTO purchases`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec(`UPDATE user_credits`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := s.Purchase(context.Background(), "u-1", "k-1", model.PaymentCard)
	require.ErrorIs(t, err, ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPurchase_InvalidMethodSkipsDB(t *testing.T) {
	s, mock := newStoreWithMock(t)

	_, err := s.Purchase(context.Background(), "u-1", "k-1", model.PaymentMethod("boleto"))
	require.ErrorIs(t, err, ErrInvalidPaymentMethod)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStats(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`FROM users u\s+LEFT JOIN user_credits c.*ILIKE`).
		WithArgs("ana").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "full_name", "is_admin", "is_blocked", "available", "used", "sent",
		}).AddRow("u-1", "a@b.c", "Ana", false, true, 3, 7, 6))

	got, err := s.UserStats(context.Background(), " ana ")
	require.NoError(t, err)
	require.Equal(t, []model.UserStats{{
		ID: "u-1", Email: "a@b.c", FullName: "Ana", IsBlocked: true,
		Available: 3, Used: 7, MessagesSent: 6,
	}}, got)
}

func TestUserStats_EscapesWildcards(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`FROM users u`).
		WithArgs(`\_`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "full_name", "is_admin", "is_blocked", "available", "used", "sent",
		}))

	got, err := s.UserStats(context.Background(), "_")
	require.NoError(t, err)
	require.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddCredits(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectExec(`INSERT INTO user_credits .* ON CONFLICT \(user_id\) DO UPDATE`).
		WithArgs("u-1", 10).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.AddCredits(context.Background(), "u-1", 10))
	require.ErrorIs(t, s.AddCredits(context.Background(), "u-1", 0), ErrInvalidAmount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetBlocked(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectExec(`UPDATE users\s+SET is_blocked = \$2`).
		WithArgs("u-1", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users`).
		WithArgs("u-x", false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.SetBlocked(context.Background(), "u-1", true))
	require.ErrorIs(t, s.SetBlocked(context.Background(), "u-x", false), ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateName(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectExec(`UPDATE users\s+SET full_name = \$2`).
		WithArgs("u-1", "Ana Souza").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.UpdateName(context.Background(), "u-1", "  Ana Souza "))
	require.ErrorIs(t, s.UpdateName(context.Background(), "u-1", "   "), ErrInvalidName)
	require.NoError(t, mock.ExpectationsWereMet())
}
