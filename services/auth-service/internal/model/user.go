package model

import "time"

const UserStatusActive = "active"

// User represents an account in the authentication system. An account has a
// password hash, a Google subject id, or both.
type User struct {
	ID            string     `bson:"_id"`
	Email         string     `bson:"email"`
	Name          string     `bson:"name"`
	Picture       *string    `bson:"picture,omitempty"`
	PasswordHash  *string    `bson:"password_hash,omitempty"`
	GoogleID      *string    `bson:"google_id,omitempty"`
	EmailVerified bool       `bson:"email_verified"`
	Status        string     `bson:"status"`
	CreatedAt     time.Time  `bson:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at"`
	LastLoginAt   *time.Time `bson:"last_login_at,omitempty"`
}

// HasPassword reports whether the account can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}
