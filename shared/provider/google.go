package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/idtoken"
	"google.golang.org/api/option"
)

var (
	ErrInvalidAssertion = errors.New("invalid identity assertion")
)

var googleIssuers = map[string]bool{
	"accounts.google.com":         true,
	"https://accounts.google.com": true,
}

// FederatedIdentity is the verified identity extracted from an ID token.
type FederatedIdentity struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// GoogleConfig configures GoogleIdentityVerifier.
type GoogleConfig struct {
	ClientID string
	Timeout  time.Duration
}

type validateFunc func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)

// GoogleIdentityVerifier validates Google ID tokens against Google's current
// signing keys.
type GoogleIdentityVerifier struct {
	clientID string
	timeout  time.Duration
	validate validateFunc
	now      func() time.Time
}

// NewGoogleIdentityVerifier creates a verifier bound to cfg.ClientID. Key
// fetches use an HTTP client limited to cfg.Timeout.
func NewGoogleIdentityVerifier(ctx context.Context, cfg GoogleConfig) (*GoogleIdentityVerifier, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("google client id is required")
	}

	validator, err := idtoken.NewValidator(ctx, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	if err != nil {
		return nil, fmt.Errorf("create google id token validator: %w", err)
	}

	return &GoogleIdentityVerifier{
		clientID: cfg.ClientID,
		timeout:  cfg.Timeout,
		validate: validator.Validate,
		now:      time.Now,
	}, nil
}

// Verify checks the assertion's signature, audience, issuer and expiry and
// returns the identity it carries. Every failure wraps ErrInvalidAssertion.
func (v *GoogleIdentityVerifier) Verify(ctx context.Context, assertion string) (*FederatedIdentity, error) {
	if strings.TrimSpace(assertion) == "" {
		return nil, fmt.Errorf("%w: empty assertion", ErrInvalidAssertion)
	}

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	payload, err := v.validate(ctx, assertion, v.clientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
	}

	if payload.Audience != v.clientID {
		return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidAssertion)
	}

	if !googleIssuers[payload.Issuer] {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidAssertion, payload.Issuer)
	}

	if !v.now().Before(time.Unix(payload.Expires, 0)) {
		return nil, fmt.Errorf("%w: assertion expired", ErrInvalidAssertion)
	}

	if payload.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidAssertion)
	}

	email := strings.ToLower(strings.TrimSpace(claimString(payload.Claims, "email")))
	if email == "" {
		return nil, fmt.Errorf("%w: missing email", ErrInvalidAssertion)
	}

	if verified, ok := payload.Claims["email_verified"].(bool); ok && !verified {
		return nil, fmt.Errorf("%w: email not verified", ErrInvalidAssertion)
	}

	name := strings.TrimSpace(claimString(payload.Claims, "name"))
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	return &FederatedIdentity{
		Subject: payload.Subject,
		Email:   email,
		Name:    name,
		Picture: claimString(payload.Claims, "picture"),
	}, nil
}

func claimString(claims map[string]any, key string) string {
	s, _ := claims[key].(string)
	return s
}
