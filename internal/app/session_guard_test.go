package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestGuard(records *mockCanonicalRepo, clock *fakeClock) *SessionGuard {
	g := NewSessionGuard(records, nil)
	g.now = clock.Now
	g.spawn = func(f func()) { f() }
	return g
}

func TestSessionGuard_RejectsMismatch(t *testing.T) {
	records := &mockCanonicalRepo{
		getFn: func(ctx context.Context, userID int64) (string, bool, error) {
			return "s2", true, nil
		},
		touchFn: func(ctx context.Context, userID int64, at time.Time) error {
			t.Error("stale session must not refresh last-seen")
			return nil
		},
	}
	g := newTestGuard(records, &fakeClock{t: time.Now()})

	if err := g.Check(context.Background(), 1, "s1"); !errors.Is(err, ErrSessionInvalidated) {
		t.Fatalf("expected ErrSessionInvalidated, got %v", err)
	}
}

func TestSessionGuard_RejectsMissingCanonical(t *testing.T) {
	g := newTestGuard(&mockCanonicalRepo{}, &fakeClock{t: time.Now()})
	if err := g.Check(context.Background(), 1, "s1"); !errors.Is(err, ErrSessionInvalidated) {
		t.Fatalf("expected ErrSessionInvalidated, got %v", err)
	}
}

func TestSessionGuard_StoreErrorIsNotInvalidation(t *testing.T) {
	records := &mockCanonicalRepo{
		getFn: func(ctx context.Context, userID int64) (string, bool, error) {
			return "", false, errors.New("connection refused")
		},
	}
	g := newTestGuard(records, &fakeClock{t: time.Now()})
	err := g.Check(context.Background(), 1, "s1")
	if err == nil || errors.Is(err, ErrSessionInvalidated) {
		t.Fatalf("expected plain store error, got %v", err)
	}
}

func TestSessionGuard_ThrottlesLastSeen(t *testing.T) {
	var touches int32
	records := &mockCanonicalRepo{
		getFn: func(ctx context.Context, userID int64) (string, bool, error) {
			return "s1", true, nil
		},
		touchFn: func(ctx context.Context, userID int64, at time.Time) error {
			atomic.AddInt32(&touches, 1)
			return nil
		},
	}
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	g := newTestGuard(records, clock)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		if err := g.Check(ctx, 1, "s1"); err != nil {
			t.Fatalf("request %d rejected: %v", i, err)
		}
		clock.Advance(2 * time.Second)
	}
	// 40s elapsed: one write.
	if n := atomic.LoadInt32(&touches); n != 1 {
		t.Fatalf("expected 1 last-seen write, got %d", n)
	}

	clock.Advance(20 * time.Second)
	_ = g.Check(ctx, 1, "s1")
	if n := atomic.LoadInt32(&touches); n != 2 {
		t.Fatalf("expected a second write after 60s, got %d", n)
	}
}

func TestSessionGuard_LastSeenFailureIsSwallowed(t *testing.T) {
	records := &mockCanonicalRepo{
		getFn: func(ctx context.Context, userID int64) (string, bool, error) {
			return "s1", true, nil
		},
		touchFn: func(ctx context.Context, userID int64, at time.Time) error {
			return errors.New("disk full")
		},
	}
	g := newTestGuard(records, &fakeClock{t: time.Now()})
	if err := g.Check(context.Background(), 1, "s1"); err != nil {
		t.Fatalf("last-seen failure leaked into request: %v", err)
	}
}

func TestSessionGuard_DefaultSpawnIsAsync(t *testing.T) {
	release := make(chan struct{})
	done := make(chan struct{})
	records := &mockCanonicalRepo{
		getFn: func(ctx context.Context, userID int64) (string, bool, error) {
			return "s1", true, nil
		},
		touchFn: func(ctx context.Context, userID int64, at time.Time) error {
			<-release
			close(done)
			return nil
		},
	}
	g := NewSessionGuard(records, nil)

	if err := g.Check(context.Background(), 1, "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("last-seen write never ran")
	}
}
