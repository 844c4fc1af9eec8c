package authapi

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/jmoiron/sqlx"

	"github.com/arc-auth/gateway/internal/db"
)

// Store bundles the repositories the SRP flow handlers touch. It exists
// as its own type, rather than passing five repos into New, so the
// handler's dependency list reads as one thing.
type Store struct {
	users         *db.UserRepo
	codes         *db.VerificationCodeRepo
	sessions      *db.SrpSessionRepo
	refreshTokens *db.RefreshTokenRepo
	captchas      *db.CaptchaRepo
}

// NewStore builds a Store from a live database connection.
func NewStore(conn *sqlx.DB) *Store {
	return &Store{
		users:         db.NewUserRepo(conn),
		codes:         db.NewVerificationCodeRepo(conn),
		sessions:      db.NewSrpSessionRepo(conn),
		refreshTokens: db.NewRefreshTokenRepo(conn),
		captchas:      db.NewCaptchaRepo(conn),
	}
}

const sixDigitCeiling = 1000000

// randomSixDigitCode returns a zero-padded 6-digit numeric code for the
// registration and password-reset email flows.
func randomSixDigitCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(sixDigitCeiling))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
