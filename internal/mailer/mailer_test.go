package mailer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_BuildsMailerFromConfig(t *testing.T) {
	m := New(Config{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "gateway",
		Password: "secret",
		From:     "noreply@arc-auth.example",
	})

	assert.NotNil(t, m)
	assert.Equal(t, "noreply@arc-auth.example", m.from)
}

func TestSend_ReturnsImmediatelyOnCanceledContext(t *testing.T) {
	m := New(Config{Host: "smtp.example.com", Port: 587, From: "noreply@arc-auth.example"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.send(ctx, "someone@example.com", "subject", "body")
	assert.Error(t, err)
}
