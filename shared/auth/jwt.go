package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenExpired      = errors.New("token has expired")
	ErrTokenBadSignature = errors.New("token signature is invalid")
	ErrTokenMalformed    = errors.New("token is malformed")
)

// Claims are the claims carried by an access token.
type Claims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// Principal is the identity resolved for an authenticated request.
type Principal struct {
	UserID    string
	ExpiresAt time.Time
}

// JWTAuthenticator signs and verifies HS256 access tokens. It knows nothing
// about revocation; callers must corroborate a verified token against the
// session ledger.
type JWTAuthenticator struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewJWTAuthenticator creates a new JWTAuthenticator instance.
func NewJWTAuthenticator(secret, issuer, audience string, ttl time.Duration) *JWTAuthenticator {
	return &JWTAuthenticator{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
	}
}

// TTL returns the lifetime of issued tokens.
func (a *JWTAuthenticator) TTL() time.Duration {
	return a.ttl
}

// Issue mints a token for userID and returns it together with its claims.
func (a *JWTAuthenticator) Issue(userID string) (string, *Claims, error) {
	now := a.now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    a.issuer,
			Audience:  jwt.ClaimStrings{a.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(a.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}

	return tokenStr, claims, nil
}

// Verify parses tokenString and checks signature, issuer, audience and expiry.
// Failures are reported as ErrTokenExpired, ErrTokenBadSignature or
// ErrTokenMalformed.
func (a *JWTAuthenticator) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}

		return a.secret, nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithAudience(a.audience),
		jwt.WithIssuer(a.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, classify(err)
	}

	if !token.Valid || claims.UserID == "" || claims.UserID != claims.Subject {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrTokenBadSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}

// HashToken returns the SHA-256 hex digest under which a token is stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
