package db

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newMockSrpRepo(t *testing.T) (*SrpSessionRepo, sqlmock.Sqlmock, *sqlx.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	sqlxDB := sqlx.NewDb(mockDB, "postgres")
	return NewSrpSessionRepo(sqlxDB), mock, sqlxDB
}

func TestSrpSessionRepo_FetchAndDeleteTx_Success(t *testing.T) {
	repo, mock, sqlxDB := newMockSrpRepo(t)

	mock.ExpectBegin()
	cols := []string{"id", "user_id", "server_ephemeral", "client_public", "expires_at", "created_at"}
	now := time.Now()
	mock.ExpectQuery(`DELETE FROM srp_sessions`).
		WithArgs("sess1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("sess1", "user1", "b", "A", now.Add(time.Minute), now))
	mock.ExpectCommit()

	tx, err := sqlxDB.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	s, err := repo.FetchAndDeleteTx(context.Background(), tx, "sess1")
	require.NoError(t, err)
	require.True(t, s.UserID.Valid)
	require.Equal(t, "user1", s.UserID.String)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSrpSessionRepo_FetchAndDeleteTx_SyntheticSessionHasNullUserID(t *testing.T) {
	repo, mock, sqlxDB := newMockSrpRepo(t)

	mock.ExpectBegin()
	cols := []string{"id", "user_id", "server_ephemeral", "client_public", "expires_at", "created_at"}
	now := time.Now()
	mock.ExpectQuery(`DELETE FROM srp_sessions`).
		WithArgs("sess2").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("sess2", nil, "b", "A", now.Add(time.Minute), now))
	mock.ExpectCommit()

	tx, err := sqlxDB.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	s, err := repo.FetchAndDeleteTx(context.Background(), tx, "sess2")
	require.NoError(t, err)
	require.False(t, s.UserID.Valid)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSrpSessionRepo_FetchAndDeleteTx_SecondAttemptFails(t *testing.T) {
	repo, mock, sqlxDB := newMockSrpRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`DELETE FROM srp_sessions`).
		WithArgs("sess1").
		WillReturnRows(sqlmock.NewRows(nil))
	mock.ExpectCommit()

	tx, err := sqlxDB.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	_, err = repo.FetchAndDeleteTx(context.Background(), tx, "sess1")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}
