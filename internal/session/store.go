package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// sweepInterval is how often the janitor scans for expired sessions.
const sweepInterval = time.Minute

// Store is an in-memory session store with TTL-based expiry.
//
// StartCleanup launches a janitor that removes sessions idle for longer
// than the TTL; Get additionally treats expired-but-not-yet-swept
// sessions as absent so expiry is exact regardless of sweep timing.
type Store struct {
	ttl    time.Duration
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates a store whose sessions expire after ttl of inactivity.
func NewStore(ttl time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		ttl:      ttl,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// StartCleanup runs the expiry janitor until ctx is canceled.
func (st *Store) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st.sweep()
			}
		}
	}()
}

// Create makes a new session owned by userID.
func (st *Store) Create(userID string) *Session {
	s := newSession(userID, time.Now())

	st.mu.Lock()
	st.sessions[s.id] = s
	st.mu.Unlock()

	return s
}

// GetOrCreate returns the session with the given ID, or creates a fresh
// one owned by userID when id is empty, unknown, expired, or owned by a
// different user. The second return value reports whether a new session
// was created.
func (st *Store) GetOrCreate(userID, id string) (*Session, bool) {
	if id != "" {
		if s, err := st.Get(id); err == nil && s.UserID() == userID {
			s.Touch()
			return s, false
		}
	}
	return st.Create(userID), true
}

// Get returns the session with the given ID. Expired sessions are
// removed and reported as ErrNotFound.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if time.Since(s.LastActive()) > st.ttl {
		st.Delete(id)
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete removes a session. Deleting an absent session is a no-op, so
// the operation is idempotent.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// Len returns the number of stored sessions, including any expired ones
// the janitor has not swept yet.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

func (st *Store) sweep() {
	cutoff := time.Now().Add(-st.ttl)

	st.mu.Lock()
	var expired int
	for id, s := range st.sessions {
		if s.LastActive().Before(cutoff) {
			delete(st.sessions, id)
			expired++
		}
	}
	remaining := len(st.sessions)
	st.mu.Unlock()

	if expired > 0 {
		st.logger.Debug("expired sessions removed", "count", expired, "remaining", remaining)
	}
}
