package model

import "time"

// PasswordResetToken is the single outstanding reset token of a user. The
// token itself is only ever held by the user; TokenHash is its SHA-256 digest.
type PasswordResetToken struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	TokenHash string    `bson:"token_hash"`
	Used      bool      `bson:"used"`
	ExpiresAt time.Time `bson:"expires_at"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}
