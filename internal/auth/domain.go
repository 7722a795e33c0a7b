package auth

import (
	"errors"
	"time"
)

// ErrTokenInvalid indicates an unknown, revoked or expired bearer credential.
var ErrTokenInvalid = errors.New("auth: invalid token")

// User represents a staff login account.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	IsActive     bool
}

// Token is a stored bearer credential. Only the hash of the secret is persisted.
type Token struct {
	Hash      []byte
	StaffID   int64
	ExpiresAt time.Time
}
