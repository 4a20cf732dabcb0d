// Package notifier delivers password reset links to users.
package notifier

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/model"
)

// Mailer sends HTML email.
type Mailer interface {
	SendHTML(to []string, subject, htmlBody string) error
}

var resetEmail = template.Must(template.New("reset").Parse(`<p>Hi {{.Name}},</p>
<p>We received a request to reset the password for your account.</p>
<p>If you made this request, please click the link below to create a new password:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
<p>This link will expire in {{.ExpiresIn}} for your security.</p>
<p>If you did not request a password reset, you can safely ignore this email. Your account will remain secure.</p>
`))

// EmailNotifier emails a reset link built from the configured reset page URL.
type EmailNotifier struct {
	mailer   Mailer
	resetURL string
	now      func() time.Time
}

// NewEmailNotifier creates an EmailNotifier.
func NewEmailNotifier(mailer Mailer, resetURL string) *EmailNotifier {
	return &EmailNotifier{
		mailer:   mailer,
		resetURL: resetURL,
		now:      time.Now,
	}
}

// SendPasswordReset emails the reset link to user.
func (n *EmailNotifier) SendPasswordReset(
	_ context.Context,
	user *model.User,
	resetToken string,
	expiresAt time.Time,
) error {
	link, err := resetLink(n.resetURL, resetToken)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	if err := resetEmail.Execute(&body, map[string]any{
		"Name":      user.Name,
		"Link":      link,
		"ExpiresIn": expiresAt.Sub(n.now()).Round(time.Minute),
	}); err != nil {
		return fmt.Errorf("render reset email: %w", err)
	}

	return n.mailer.SendHTML([]string{user.Email}, "Password Reset Request", body.String())
}

func resetLink(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse reset url: %w", err)
	}

	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// LogNotifier records that a reset was requested without delivering it. It
// is used when no mail server is configured.
type LogNotifier struct {
	logger *zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendPasswordReset(_ context.Context, user *model.User, _ string, expiresAt time.Time) error {
	n.logger.Warn().
		Str("user_id", user.ID).
		Time("expires_at", expiresAt).
		Msg("password reset requested but mail delivery is disabled")

	return nil
}
