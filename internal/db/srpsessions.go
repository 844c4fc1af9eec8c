package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arc-auth/gateway/internal/models"
)

// SrpSessionRepo handles the srp_sessions table, the in-progress
// login-handshake state between init and verify.
type SrpSessionRepo struct {
	db *sqlx.DB
}

// NewSrpSessionRepo constructs an SrpSessionRepo over db.
func NewSrpSessionRepo(db *sqlx.DB) *SrpSessionRepo {
	return &SrpSessionRepo{db: db}
}

// Create persists a new session for login/init's leg, good for ttl.
// userID is empty for the enumeration-resistant synthetic-session
// branch, stored as NULL. Such a session can never successfully verify
// because FetchAndDeleteTx's caller rejects a NULL UserID.
func (r *SrpSessionRepo) Create(ctx context.Context, userID, serverEphemeral, clientPublic string, ttl time.Duration) (*models.SrpSession, error) {
	s := &models.SrpSession{
		ID:              uuid.New().String(),
		UserID:          sql.NullString{String: userID, Valid: userID != ""},
		ServerEphemeral: serverEphemeral,
		ClientPublic:    clientPublic,
		ExpiresAt:       time.Now().Add(ttl),
		CreatedAt:       time.Now(),
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO srp_sessions (id, user_id, server_ephemeral, client_public, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.UserID, s.ServerEphemeral, s.ClientPublic, s.ExpiresAt, s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// FetchAndDeleteTx atomically fetches and deletes the session row if it
// is unexpired, within tx. Concurrent verifies race on this single
// DELETE...RETURNING and only one can observe a row, so a session id can
// never verify twice.
func (r *SrpSessionRepo) FetchAndDeleteTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.SrpSession, error) {
	var s models.SrpSession
	err := tx.GetContext(ctx, &s, `
		DELETE FROM srp_sessions
		WHERE id = $1 AND expires_at > now()
		RETURNING *`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteExpired removes rows past their TTL, for the cleanup sweep.
func (r *SrpSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM srp_sessions WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// BeginTxx starts a transaction, used by the authapi login-verify handler
// to run FetchAndDeleteTx and commit the session's deletion on its own,
// before the proof is checked; new tokens are stored in a later transaction.
func (r *SrpSessionRepo) BeginTxx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, nil)
}
