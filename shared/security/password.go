// Package security hashes and verifies user passwords and enforces the
// password strength policy.
package security

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/matthewhartstonge/argon2"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the minimum number of characters in a password.
const MinPasswordLength = 8

var (
	ErrMalformedHash = errors.New("malformed password hash")
	ErrWeakPassword  = errors.New(
		"password must be at least 8 characters long and contain uppercase, lowercase, number and special character",
	)
)

var argonConfig = argon2.DefaultConfig()

// HashPassword hashes password with Argon2id and returns the encoded digest.
func HashPassword(password string) (string, error) {
	encoded, err := argonConfig.HashEncoded([]byte(password))
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	return string(encoded), nil
}

// VerifyPassword reports whether password matches hash. Argon2 digests and
// legacy bcrypt digests are both accepted. A malformed hash never verifies;
// the returned error describes why.
func VerifyPassword(password, hash string) (bool, error) {
	switch {
	case isBcrypt(hash):
		err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
		}
		return true, nil
	case strings.HasPrefix(hash, "$argon2"):
		ok, err := argon2.VerifyEncoded([]byte(password), []byte(hash))
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
		}
		return ok, nil
	default:
		return false, ErrMalformedHash
	}
}

// NeedsRehash reports whether hash was produced by an algorithm other than the
// current Argon2id configuration.
func NeedsRehash(hash string) bool {
	return !strings.HasPrefix(hash, "$argon2id$")
}

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") ||
		strings.HasPrefix(hash, "$2b$") ||
		strings.HasPrefix(hash, "$2y$")
}

// ValidatePasswordStrength enforces the password policy: at least
// MinPasswordLength characters with an uppercase letter, a lowercase letter,
// a digit and a symbol.
func ValidatePasswordStrength(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrWeakPassword
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}

	if !upper || !lower || !digit || !symbol {
		return ErrWeakPassword
	}

	return nil
}
