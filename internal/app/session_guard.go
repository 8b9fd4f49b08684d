package app

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"gigmarket/internal/domain"
	"gigmarket/internal/logger"
)

// ErrSessionInvalidated indicates the session was superseded by a newer login.
var ErrSessionInvalidated = errors.WithHint(
	errors.New("session invalidated"),
	"your account was logged in elsewhere; please log in again",
)

// LastSeenInterval bounds how often last-seen is written per session.
const LastSeenInterval = 60 * time.Second

// SessionGuard rejects sessions that are no longer the user's canonical one.
type SessionGuard struct {
	records domain.CanonicalSessionRepository
	log     *zap.SugaredLogger

	interval time.Duration
	now      func() time.Time
	spawn    func(func())

	mu        sync.Mutex
	lastTouch map[string]time.Time
}

// NewSessionGuard creates a guard backed by the canonical session store.
func NewSessionGuard(records domain.CanonicalSessionRepository, log *zap.SugaredLogger) *SessionGuard {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &SessionGuard{
		records:   records,
		log:       log.Named("guard"),
		interval:  LastSeenInterval,
		now:       time.Now,
		spawn:     func(f func()) { go f() },
		lastTouch: make(map[string]time.Time),
	}
}

// Check verifies that sessionID is the canonical session for userID. A
// missing or different canonical id yields ErrSessionInvalidated. On success
// the user's last-seen time is refreshed in the background, at most once per
// interval for each session.
func (g *SessionGuard) Check(ctx context.Context, userID int64, sessionID string) error {
	canonical, ok, err := g.records.GetCanonicalSessionID(ctx, userID)
	if err != nil {
		return errors.Wrapf(err, "load canonical session for user %d", userID)
	}
	if !ok || !ConstantTimeCompare(canonical, sessionID) {
		g.forget(sessionID)
		g.log.Infow("stale session rejected", logger.FieldUserID, userID)
		return ErrSessionInvalidated
	}

	g.touch(userID, sessionID)
	return nil
}

func (g *SessionGuard) touch(userID int64, sessionID string) {
	now := g.now()

	g.mu.Lock()
	last, seen := g.lastTouch[sessionID]
	if seen && now.Sub(last) < g.interval {
		g.mu.Unlock()
		return
	}
	g.lastTouch[sessionID] = now
	g.pruneLocked(now)
	g.mu.Unlock()

	g.spawn(func() {
		if err := g.records.TouchLastSeen(context.Background(), userID, now); err != nil {
			g.log.Debugw("last-seen update failed", logger.FieldUserID, userID, logger.FieldError, err)
		}
	})
}

func (g *SessionGuard) forget(sessionID string) {
	g.mu.Lock()
	delete(g.lastTouch, sessionID)
	g.mu.Unlock()
}

// pruneLocked drops throttle entries old enough that they no longer suppress
// a write. Only runs once the map is large.
func (g *SessionGuard) pruneLocked(now time.Time) {
	if len(g.lastTouch) < 1024 {
		return
	}
	for id, t := range g.lastTouch {
		if now.Sub(t) >= g.interval {
			delete(g.lastTouch, id)
		}
	}
}
