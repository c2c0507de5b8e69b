package session

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one conversation's state. All methods are safe for
// concurrent use.
//
// LockTurn/UnlockTurn serialize whole chat turns within a session so
// that concurrent requests against the same conversation cannot
// interleave their history writes. Different sessions are independent.
type Session struct {
	id        string
	userID    string
	createdAt time.Time

	turnMu sync.Mutex

	mu            sync.RWMutex
	system        string
	profileLoaded bool
	messages      []Message
	lastActive    time.Time
}

// NewID generates a session ID: "sess_" plus 12 hex characters.
func NewID() string {
	u := uuid.New()
	return "sess_" + hex.EncodeToString(u[:6])
}

func newSession(userID string, now time.Time) *Session {
	return &Session{
		id:         NewID(),
		userID:     userID,
		createdAt:  now,
		lastActive: now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// UserID returns the owning user.
func (s *Session) UserID() string { return s.userID }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LockTurn acquires the per-session turn lock.
func (s *Session) LockTurn() { s.turnMu.Lock() }

// UnlockTurn releases the per-session turn lock.
func (s *Session) UnlockTurn() { s.turnMu.Unlock() }

// SetSystemMessage records the system prompt if none is set yet.
// The prompt is pinned for the session's lifetime; later calls with a
// changed profile do not rewrite history.
func (s *Session) SetSystemMessage(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.profileLoaded {
		s.system = content
		s.profileLoaded = true
	}
}

// SystemMessage returns the pinned system prompt, or "" if unset.
func (s *Session) SystemMessage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.system
}

// ProfileLoaded reports whether the profile load already happened for
// this session. Tracked explicitly so the invariant holds even for an
// empty system prompt.
func (s *Session) ProfileLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profileLoaded
}

// Append adds a message to the history and refreshes the activity
// timestamp.
func (s *Session) Append(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	s.lastActive = time.Now()
}

// Messages returns a copy of the conversation history, excluding the
// system prompt.
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of history messages.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// LastActive returns the time of the most recent append or touch.
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// Touch refreshes the activity timestamp without modifying history.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
}

// EstimateTokens approximates the total token footprint of the session,
// including the system prompt.
func (s *Session) EstimateTokens() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := EstimateTokens(s.system)
	for _, m := range s.messages {
		total += EstimateTokens(m.Content)
	}
	return total
}
