// Package scheduler runs the periodic cleanup sweep: every minute it
// issues idempotent deletes for expired or consumed verification codes,
// refresh tokens, SRP sessions, and captchas. It never touches user
// rows.
package scheduler

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"

	"github.com/arc-auth/gateway/internal/db"
	"github.com/arc-auth/gateway/internal/logger"
)

// sweepTimeout bounds one full sweep so a slow database can't stack
// overlapping runs' work indefinitely.
const sweepTimeout = 30 * time.Second

// Scheduler owns the cron runner and the repositories it sweeps.
type Scheduler struct {
	cron *cron.Cron

	codes         *db.VerificationCodeRepo
	refreshTokens *db.RefreshTokenRepo
	srpSessions   *db.SrpSessionRepo
	captchas      *db.CaptchaRepo
}

// New builds a Scheduler over conn. Start must be called to begin
// sweeping.
func New(conn *sqlx.DB) *Scheduler {
	return &Scheduler{
		cron:          cron.New(),
		codes:         db.NewVerificationCodeRepo(conn),
		refreshTokens: db.NewRefreshTokenRepo(conn),
		srpSessions:   db.NewSrpSessionRepo(conn),
		captchas:      db.NewCaptchaRepo(conn),
	}
}

// Start registers the every-minute sweep and launches the cron runner.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("* * * * *", s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	logger.Scheduler().Info().Msg("cleanup scheduler started")
	return nil
}

// Stop halts the cron runner, waiting for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Scheduler().Info().Msg("cleanup scheduler stopped")
}

// sweep issues the four idempotent deletes. Each is independent; one
// failing table doesn't block the others.
func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	type job struct {
		name string
		run  func(context.Context) (int64, error)
	}
	jobs := []job{
		{"verification_codes", s.codes.DeleteExpiredAndUsed},
		{"refresh_tokens", s.refreshTokens.DeleteExpiredOrRevoked},
		{"srp_sessions", s.srpSessions.DeleteExpired},
		{"captchas", s.captchas.DeleteExpiredOrUsed},
	}

	var total int64
	for _, j := range jobs {
		n, err := j.run(ctx)
		if err != nil {
			logger.Scheduler().Warn().Err(err).Str("table", j.name).Msg("cleanup sweep failed")
			continue
		}
		total += n
	}

	if total > 0 {
		logger.Scheduler().Debug().Int64("rows", total).Msg("cleanup sweep removed rows")
	}
}
