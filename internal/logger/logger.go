// Package logger provides structured logging for the gateway via zerolog.
// Call sites obtain a component-scoped sub-logger instead of logging
// against the bare global logger, so every line carries which subsystem
// emitted it.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the global logger instance, configured by Initialize.
var Log zerolog.Logger

// Initialize sets up the global logger with configuration.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().
		Str("service", "arc-auth-gateway").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("logger initialized")
}

// GetLogger returns the global logger instance.
func GetLogger() *zerolog.Logger {
	return &Log
}

// Security creates a logger for security-relevant events: auth failures,
// token validation, secret rotation.
func Security() *zerolog.Logger {
	l := Log.With().Str("component", "security").Logger()
	return &l
}

// Proxy creates a logger for edge proxy events: route resolution,
// forwarding, upgrade handling.
func Proxy() *zerolog.Logger {
	l := Log.With().Str("component", "proxy").Logger()
	return &l
}

// SRP creates a logger for SRP-6a registration/login flow events. Never
// logs salts, verifiers, ephemerals, or proofs.
func SRP() *zerolog.Logger {
	l := Log.With().Str("component", "srp").Logger()
	return &l
}

// Token creates a logger for JWT issuance, validation, and rotation
// events. Never logs the signing secret or raw token bodies.
func Token() *zerolog.Logger {
	l := Log.With().Str("component", "token").Logger()
	return &l
}

// Scheduler creates a logger for the cleanup scheduler.
func Scheduler() *zerolog.Logger {
	l := Log.With().Str("component", "scheduler").Logger()
	return &l
}

// Admin creates a logger for admin API events.
func Admin() *zerolog.Logger {
	l := Log.With().Str("component", "admin").Logger()
	return &l
}

// Mailer creates a logger for outbound SMTP delivery events.
func Mailer() *zerolog.Logger {
	l := Log.With().Str("component", "mailer").Logger()
	return &l
}

// Database creates a logger for database events.
func Database() *zerolog.Logger {
	l := Log.With().Str("component", "database").Logger()
	return &l
}
