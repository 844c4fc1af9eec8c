package db

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*UserRepo, sqlmock.Sqlmock, *sqlx.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	sqlxDB := sqlx.NewDb(mockDB, "postgres")
	return NewUserRepo(sqlxDB), mock, sqlxDB
}

func TestUserRepo_Create(t *testing.T) {
	repo, mock, _ := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	u, err := repo.Create(context.Background(), "Alice@Example.com", "saltHex", "verifierHex")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", u.Email)
	require.True(t, u.IsActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetByEmail_NotFound(t *testing.T) {
	repo, mock, _ := newMockRepo(t)

	mock.ExpectQuery(`SELECT \* FROM users WHERE email = \$1`).
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows(nil))

	_, err := repo.GetByEmail(context.Background(), "ghost@example.com")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetByEmail_Found(t *testing.T) {
	repo, mock, _ := newMockRepo(t)

	cols := []string{"id", "email", "salt", "verifier", "email_verified", "is_active", "created_at", "updated_at"}
	now := time.Now()
	mock.ExpectQuery(`SELECT \* FROM users WHERE email = \$1`).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("u1", "alice@example.com", "salt", "verifier", true, true, now, now))

	u, err := repo.GetByEmail(context.Background(), "ALICE@Example.com")
	require.NoError(t, err)
	require.Equal(t, "u1", u.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_SetActive_NotFound(t *testing.T) {
	repo, mock, _ := newMockRepo(t)

	mock.ExpectExec(`UPDATE users SET is_active`).
		WithArgs(false, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetActive(context.Background(), "missing", false)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	require.False(t, IsUniqueViolation(nil))
	require.True(t, IsUniqueViolation(requireErrorContaining("23505")))
}

type sqlStateErr string

func (e sqlStateErr) Error() string { return string(e) }

func requireErrorContaining(code string) error {
	return sqlStateErr("pq: duplicate key value violates unique constraint (SQLSTATE " + code + ")")
}
