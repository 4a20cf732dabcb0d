package model

import "time"

// Session is a server-side record of an issued bearer token. Only the SHA-256
// digest of the token is stored.
type Session struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	TokenHash string    `bson:"token_hash"`
	ExpiresAt time.Time `bson:"expires_at"`
	CreatedAt time.Time `bson:"created_at"`
	IPAddress *string   `bson:"ip_address,omitempty"`
	UserAgent *string   `bson:"user_agent,omitempty"`
	IsValid   bool      `bson:"is_valid"`
}

// IsUsable reports whether the session still authorizes requests at now.
func (s *Session) IsUsable(now time.Time) bool {
	return s.IsValid && now.Before(s.ExpiresAt)
}

// ClientOrigin describes where a login request came from.
type ClientOrigin struct {
	IPAddress string
	UserAgent string
}
