// Package mailer sends the gateway's two outbound emails: the
// registration verification code and the password-reset verification
// code. Delivery is synchronous from the caller's
// point of view but bounded by a per-send timeout so a slow or
// unreachable SMTP relay cannot stall a request handler indefinitely.
package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/go-gomail/gomail"

	"github.com/arc-auth/gateway/internal/logger"
)

// Config holds the SMTP relay settings, mirroring the SmtpConfig
// singleton row so the mailer can be rebuilt after an admin edits it.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer sends transactional emails through a single SMTP relay.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

// New builds a Mailer from cfg.
func New(cfg Config) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

// SendVerificationCode emails a 6-digit registration code to addr.
func (m *Mailer) SendVerificationCode(ctx context.Context, addr, code string) error {
	return m.send(ctx, addr, "Verify your email", fmt.Sprintf(
		"Your verification code is %s. It expires in 10 minutes.", code,
	))
}

// SendPasswordResetCode emails a 6-digit password-reset code to addr.
func (m *Mailer) SendPasswordResetCode(ctx context.Context, addr, code string) error {
	return m.send(ctx, addr, "Reset your password", fmt.Sprintf(
		"Your password reset code is %s. It expires in 10 minutes.", code,
	))
}

func (m *Mailer) send(ctx context.Context, addr, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", addr)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Mailer().Error().Err(err).Str("to", addr).Msg("failed to send email")
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Mailer().Warn().Str("to", addr).Msg("email send timed out")
		return ctx.Err()
	case <-time.After(10 * time.Second):
		logger.Mailer().Warn().Str("to", addr).Msg("email send timed out")
		return fmt.Errorf("mailer: send to %s timed out", addr)
	}
}
