// Package app holds the application services and business logic.
package app

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"gigmarket/internal/domain"
	"gigmarket/internal/logger"
)

var (
	// ErrInvalidCredentials indicates that the provided username or password was incorrect.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrSessionNotFound indicates that the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired indicates that the session has expired.
	ErrSessionExpired = errors.New("session expired")
	// ErrUserNotFound indicates that the user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrUsernameTaken indicates a registration for an existing username.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrInvalidRegistration indicates unusable registration input.
	ErrInvalidRegistration = errors.New("invalid registration")
	// ErrUsersExist is returned by CreateInitialUser once any user exists.
	ErrUsersExist = errors.New("users already exist")
)

// DefaultSessionTTL is how long a login stays valid.
const DefaultSessionTTL = 24 * time.Hour

const minPasswordLen = 8

// AuthService handles authentication and session management. Every
// successful login makes the new session the user's canonical one.
type AuthService struct {
	users     domain.UserRepository
	sessions  domain.SessionRepository
	canonical domain.CanonicalSessionRepository
	ttl       time.Duration
	log       *zap.SugaredLogger
}

// NewAuthService creates a new authentication service.
func NewAuthService(users domain.UserRepository, sessions domain.SessionRepository, canonical domain.CanonicalSessionRepository, ttl time.Duration, log *zap.SugaredLogger) *AuthService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &AuthService{
		users:     users,
		sessions:  sessions,
		canonical: canonical,
		ttl:       ttl,
		log:       log.Named("auth"),
	}
}

// TTL returns the session lifetime.
func (s *AuthService) TTL() time.Duration { return s.ttl }

// Login authenticates a user and creates a session.
func (s *AuthService) Login(ctx context.Context, username, password, userAgent, ip string) (string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil || user == nil {
		return "", ErrInvalidCredentials
	}
	if user.PasswordHash == "" {
		// SSO-provisioned accounts have no password.
		return "", ErrInvalidCredentials
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	return s.startSession(ctx, user, userAgent, ip)
}

// Register creates an account and logs it in.
func (s *AuthService) Register(ctx context.Context, username, password, userAgent, ip string) (*domain.User, string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, "", errors.WithHint(ErrInvalidRegistration, "username is required")
	}
	if len(password) < minPasswordLen {
		return nil, "", errors.WithHintf(ErrInvalidRegistration, "password must be at least %d characters", minPasswordLen)
	}

	existing, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, "", errors.Wrap(err, "lookup username")
	}
	if existing != nil {
		return nil, "", ErrUsernameTaken
	}

	user, err := s.createUser(ctx, username, password)
	if err != nil {
		return nil, "", err
	}
	token, err := s.startSession(ctx, user, userAgent, ip)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Logout invalidates a session. The canonical id is cleared only when it
// still names this session, so logging out a stale session leaves the
// newer login intact.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		return errors.Wrap(err, "lookup session")
	}
	if session == nil {
		return nil
	}
	if err := s.sessions.Delete(ctx, token); err != nil {
		return errors.Wrap(err, "delete session")
	}
	if err := s.canonical.ClearCanonicalSessionID(ctx, session.UserID, token); err != nil {
		return errors.Wrap(err, "clear canonical session")
	}
	s.log.Infow("logged out", logger.FieldUserID, session.UserID)
	return nil
}

// ValidateSession resolves a session token to its user.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*domain.User, error) {
	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		return nil, errors.Wrap(err, "lookup session")
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	if time.Now().After(session.ExpiresAt) {
		_ = s.sessions.Delete(ctx, token)
		return nil, ErrSessionExpired
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "lookup user")
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	return user, nil
}

// DestroySession deletes a local session without touching the canonical id.
func (s *AuthService) DestroySession(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// PurgeExpiredSessions deletes sessions past their expiry.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "purge expired sessions")
	}
	return n, nil
}

// CreateInitialUser creates the first user if no users exist.
func (s *AuthService) CreateInitialUser(ctx context.Context, username, password string) error {
	count, err := s.users.Count(ctx)
	if err != nil {
		return err
	}

	if count > 0 {
		return ErrUsersExist
	}

	_, err = s.createUser(ctx, username, password)
	return err
}

// CreateUser creates an account without starting a session.
func (s *AuthService) CreateUser(ctx context.Context, username, password string) (*domain.User, error) {
	existing, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, errors.Wrap(err, "lookup username")
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}
	return s.createUser(ctx, username, password)
}

// LoginWithUser creates a session for an already authenticated user (e.g. via SSO).
func (s *AuthService) LoginWithUser(ctx context.Context, username, userAgent, ip string) (string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return "", errors.Wrap(err, "lookup user")
	}
	if user == nil {
		// Auto-provision. Empty password hash: these accounts log in via SSO only.
		user, err = s.users.Create(ctx, username, "")
		if err != nil {
			// Lost a race on the unique constraint; read the winner.
			user, err = s.users.GetByUsername(ctx, username)
			if err != nil || user == nil {
				return "", errors.Wrap(ErrUserNotFound, "provision sso user")
			}
		}
	}

	return s.startSession(ctx, user, userAgent, ip)
}

func (s *AuthService) createUser(ctx context.Context, username, password string) (*domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}
	user, err := s.users.Create(ctx, username, string(hash))
	if err != nil {
		return nil, errors.Wrap(err, "create user")
	}
	s.log.Infow("user created", logger.FieldUserID, user.ID)
	return user, nil
}

// startSession issues a fresh session and makes it the user's only valid one.
func (s *AuthService) startSession(ctx context.Context, user *domain.User, userAgent, ip string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}

	expiresAt := time.Now().Add(s.ttl)
	if err := s.sessions.Create(ctx, user.ID, token, userAgent, ip, expiresAt); err != nil {
		return "", errors.Wrap(err, "create session")
	}
	if err := s.canonical.SetCanonicalSessionID(ctx, user.ID, token); err != nil {
		_ = s.sessions.Delete(ctx, token)
		return "", errors.Wrap(err, "set canonical session")
	}

	s.log.Infow("session started", logger.FieldUserID, user.ID)
	return token, nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// ConstantTimeCompare performs a constant-time comparison of two strings.
func ConstantTimeCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
