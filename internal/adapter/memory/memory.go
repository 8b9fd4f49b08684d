// Package memory implements an in-memory repository for development and testing.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"gigmarket/internal/domain"
)

// DB implements an in-memory database storage.
type DB struct {
	mu       sync.Mutex
	jobs     map[int64]domain.Job
	users    []*domain.User
	sessions map[string]*domain.Session
	records  map[int64]domain.SessionRecord

	jobIDCounter  int64
	userIDCounter int64
}

// New creates a new in-memory database.
func New() *DB {
	return &DB{
		jobs:     make(map[int64]domain.Job),
		sessions: make(map[string]*domain.Session),
		records:  make(map[int64]domain.SessionRecord),
	}
}

// Ensure interfaces are met.
var _ domain.JobRepository = (*DB)(nil)
var _ domain.UserRepository = (*DB)(nil)
var _ domain.CanonicalSessionRepository = (*DB)(nil)
var _ domain.SessionRepository = (*SessionRepo)(nil)

// --- JobRepository ---

// CreateJob stores a job and returns its id.
func (db *DB) CreateJob(ctx context.Context, job *domain.Job) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.jobIDCounter++
	now := time.Now().UTC()
	j := *job
	j.ID = db.jobIDCounter
	j.CreatedAt = now
	j.UpdatedAt = now
	db.jobs[j.ID] = j
	return j.ID, nil
}

// GetJob returns a copy of the job, or nil if absent.
func (db *DB) GetJob(ctx context.Context, id int64) (*domain.Job, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	j, ok := db.jobs[id]
	if !ok {
		return nil, nil
	}
	return &j, nil
}

// ListJobsByOwner returns the owner's jobs, newest first.
func (db *DB) ListJobsByOwner(ctx context.Context, ownerID int64) ([]domain.Job, error) {
	return db.listJobs(func(j domain.Job) bool { return j.OwnerID == ownerID }, 0), nil
}

// ListJobsByStatus returns up to limit jobs in the given status, newest first.
func (db *DB) ListJobsByStatus(ctx context.Context, status domain.JobStatus, limit int) ([]domain.Job, error) {
	return db.listJobs(func(j domain.Job) bool { return j.Status == status }, limit), nil
}

func (db *DB) listJobs(keep func(domain.Job) bool, limit int) []domain.Job {
	db.mu.Lock()
	defer db.mu.Unlock()

	out := make([]domain.Job, 0)
	for _, j := range db.jobs {
		if keep(j) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID > out[k].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// UpdateJobFields overwrites the stored job's editable fields. The stored
// status is kept.
func (db *DB) UpdateJobFields(ctx context.Context, job *domain.Job) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	old, ok := db.jobs[job.ID]
	if !ok {
		return nil
	}
	j := *job
	j.OwnerID = old.OwnerID
	j.Status = old.Status
	j.CreatedAt = old.CreatedAt
	j.UpdatedAt = time.Now().UTC()
	db.jobs[j.ID] = j
	return nil
}

// UpdateJobStatus sets next only when the stored status equals expected.
func (db *DB) UpdateJobStatus(ctx context.Context, id int64, expected, next domain.JobStatus) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	j, ok := db.jobs[id]
	if !ok || j.Status != expected {
		return false, nil
	}
	j.Status = next
	j.UpdatedAt = time.Now().UTC()
	db.jobs[id] = j
	return true, nil
}

// DeleteJob removes a job.
func (db *DB) DeleteJob(ctx context.Context, id int64) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.jobs[id]; !ok {
		return false, nil
	}
	delete(db.jobs, id)
	return true, nil
}

// --- UserRepository ---

// GetByUsername retrieves a user by username.
func (db *DB) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Username == username {
			return u, nil
		}
	}
	// Return nil if not found
	return nil, nil
}

// GetByID retrieves a user by ID.
func (db *DB) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

// Create creates a new user.
func (db *DB) Create(ctx context.Context, username, passwordHash string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Username == username {
			return nil, errors.New("user already exists")
		}
	}

	db.userIDCounter++
	u := &domain.User{
		ID:           db.userIDCounter,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	db.users = append(db.users, u)
	return u, nil
}

// Count returns the total number of users.
func (db *DB) Count(ctx context.Context) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.users), nil
}

// --- CanonicalSessionRepository ---

// GetCanonicalSessionID returns the user's canonical session id.
func (db *DB) GetCanonicalSessionID(ctx context.Context, userID int64) (string, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rec, ok := db.records[userID]
	if !ok {
		return "", false, nil
	}
	return rec.SessionID, true, nil
}

// SetCanonicalSessionID replaces the user's canonical session id.
func (db *DB) SetCanonicalSessionID(ctx context.Context, userID int64, sessionID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.records[userID] = domain.SessionRecord{UserID: userID, SessionID: sessionID, LastSeenAt: time.Now().UTC()}
	return nil
}

// ClearCanonicalSessionID removes the record if it still holds sessionID.
func (db *DB) ClearCanonicalSessionID(ctx context.Context, userID int64, sessionID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if rec, ok := db.records[userID]; ok && rec.SessionID == sessionID {
		delete(db.records, userID)
	}
	return nil
}

// TouchLastSeen records activity for the user.
func (db *DB) TouchLastSeen(ctx context.Context, userID int64, at time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if rec, ok := db.records[userID]; ok {
		rec.LastSeenAt = at.UTC()
		db.records[userID] = rec
	}
	return nil
}

// SessionRecord returns the stored record for inspection.
func (db *DB) SessionRecord(userID int64) (domain.SessionRecord, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	rec, ok := db.records[userID]
	return rec, ok
}

// --- SessionRepository ---

// SessionRepo implements session persistence.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo creates a new session repository.
func (db *DB) NewSessionRepo() *SessionRepo {
	return &SessionRepo{db: db}
}

// Create creates a new session.
func (r *SessionRepo) Create(ctx context.Context, userID int64, token, userAgent, ip string, expiresAt time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.sessions[token] = &domain.Session{
		Token:     token,
		UserID:    userID,
		UserAgent: userAgent,
		IP:        ip,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

// GetByToken retrieves a session by token.
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if s, ok := r.db.sessions[token]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

// Delete deletes a session.
func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.sessions, token)
	return nil
}

// DeleteExpired deletes all expired sessions.
func (r *SessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	now := time.Now()
	var n int64
	for k, v := range r.db.sessions {
		if now.After(v.ExpiresAt) {
			delete(r.db.sessions, k)
			n++
		}
	}
	return n, nil
}
