// Package domain contains the core business entities and interfaces.
package domain

import (
	"context"
	"time"
)

// User represents an authenticated user in the system.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Session is a locally issued login session, keyed by the cookie token.
type Session struct {
	Token     string
	UserID    int64
	UserAgent string
	IP        string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// SessionRecord holds the one session id a user may currently use.
type SessionRecord struct {
	UserID     int64
	SessionID  string
	LastSeenAt time.Time
}

// UserRepository defines the port for user persistence operations.
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	Create(ctx context.Context, username, passwordHash string) (*User, error)
	Count(ctx context.Context) (int, error)
}

// SessionRepository defines the port for session persistence operations.
type SessionRepository interface {
	Create(ctx context.Context, userID int64, token, userAgent, ip string, expiresAt time.Time) error
	GetByToken(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// CanonicalSessionRepository stores the canonical session id per user.
// Setting a new id replaces the previous one.
type CanonicalSessionRepository interface {
	GetCanonicalSessionID(ctx context.Context, userID int64) (string, bool, error)
	SetCanonicalSessionID(ctx context.Context, userID int64, sessionID string) error
	// ClearCanonicalSessionID removes the record only if it still holds sessionID.
	ClearCanonicalSessionID(ctx context.Context, userID int64, sessionID string) error
	TouchLastSeen(ctx context.Context, userID int64, at time.Time) error
}
