package notifier

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/model"
)

type captureMailer struct {
	to      []string
	subject string
	body    string
}

func (m *captureMailer) SendHTML(to []string, subject, htmlBody string) error {
	m.to, m.subject, m.body = to, subject, htmlBody
	return nil
}

func TestEmailNotifier_SendPasswordReset(t *testing.T) {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	m := &captureMailer{}
	n := NewEmailNotifier(m, "https://app.example.com/reset-password?lang=en")
	n.now = func() time.Time { return now }

	user := &model.User{ID: "u-1", Email: "zoe@example.com", Name: "Zoe <admin>"}
	require.NoError(t, n.SendPasswordReset(context.Background(), user, "abc123", now.Add(time.Hour)))

	assert.Equal(t, []string{"zoe@example.com"}, m.to)
	assert.Equal(t, "Password Reset Request", m.subject)
	assert.Contains(t, m.body, "https://app.example.com/reset-password?lang=en&amp;token=abc123")
	assert.Contains(t, m.body, "Zoe &lt;admin&gt;")
	assert.Contains(t, m.body, "1h0m0s")
}

func TestResetLink_InvalidBase(t *testing.T) {
	_, err := resetLink("://bad", "t")
	assert.Error(t, err)
}

func TestLogNotifier_NeverLogsToken(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	n := NewLogNotifier(&logger)
	require.NoError(t, n.SendPasswordReset(context.Background(), &model.User{ID: "u-1"}, "secret-token", time.Now()))

	assert.Contains(t, buf.String(), "u-1")
	assert.NotContains(t, buf.String(), "secret-token")
}
