package scheduler

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/arc-auth/gateway/internal/db"
)

func TestSweepDeletesAllFourTables(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	mock.ExpectExec(`DELETE FROM verification_codes`).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE FROM refresh_tokens`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM srp_sessions`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM captchas`).WillReturnResult(sqlmock.NewResult(0, 4))

	s := New(db.NewDatabaseForTesting(mockDB).DB())
	s.sweep()

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepContinuesPastFailures(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	mock.ExpectExec(`DELETE FROM verification_codes`).WillReturnError(sqlmock.ErrCancelled)
	mock.ExpectExec(`DELETE FROM refresh_tokens`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM srp_sessions`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM captchas`).WillReturnResult(sqlmock.NewResult(0, 0))

	s := New(db.NewDatabaseForTesting(mockDB).DB())
	s.sweep()

	require.NoError(t, mock.ExpectationsWereMet())
}
