package session

import (
	"errors"
	"regexp"
)

// Sentinel errors for store operations, checked with errors.Is().
var (
	// ErrNotFound indicates the session does not exist or has expired.
	ErrNotFound = errors.New("session not found")
)

var idPattern = regexp.MustCompile(`^sess_[0-9a-f]{12}$`)

// ValidID reports whether id has the canonical session ID form.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}
