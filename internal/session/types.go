// Package session holds in-memory conversation state for active chats.
//
// Sessions are keyed by opaque IDs of the form "sess_" followed by 12 hex
// characters. Each session carries the full message history for one
// conversation and expires after a period of inactivity. History is not
// persisted; a restarted server starts with an empty store.
package session

import (
	"time"

	"github.com/edubot/tutord/internal/knowledge"
)

// Role identifies the author of a message.
type Role string

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn entry.
type Message struct {
	Role      Role                 `json:"role"`
	Content   string               `json:"content"`
	Citations []knowledge.Citation `json:"citations,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// EstimateTokens approximates the token count of a text as len/4.
// Good enough for context budgeting; exact counts come from the model.
func EstimateTokens(text string) int {
	return len(text) / 4
}
