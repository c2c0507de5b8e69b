package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/edubot/tutord/internal/session"
)

type sessionHandler struct {
	store  *session.Store
	logger *slog.Logger
}

type sessionMetadata struct {
	SessionID     string    `json:"session_id"`
	UserID        string    `json:"user_id"`
	CreatedAt     time.Time `json:"created_at"`
	LastActive    time.Time `json:"last_active"`
	MessageCount  int       `json:"message_count"`
	ProfileLoaded bool      `json:"profile_loaded"`
}

// get handles GET /v1/sessions/{id}. Sessions are only visible to their
// owner; a foreign session returns 403 rather than leaking its absence.
func (h *sessionHandler) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sess, err := h.store.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}

	sub, _ := subjectFromContext(r.Context())
	if sess.UserID() != sub {
		writeError(w, http.StatusForbidden, "forbidden", "session belongs to another user")
		return
	}

	writeJSON(w, http.StatusOK, sessionMetadata{
		SessionID:     sess.ID(),
		UserID:        sess.UserID(),
		CreatedAt:     sess.CreatedAt(),
		LastActive:    sess.LastActive(),
		MessageCount:  sess.Len(),
		ProfileLoaded: sess.ProfileLoaded(),
	})
}

// delete handles DELETE /v1/sessions/{id}. Idempotent: deleting an absent
// or already-deleted session also returns 204.
func (h *sessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sess, err := h.store.Get(id)
	if err != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	sub, _ := subjectFromContext(r.Context())
	if sess.UserID() != sub {
		writeError(w, http.StatusForbidden, "forbidden", "session belongs to another user")
		return
	}

	h.store.Delete(id)
	h.logger.Info("session deleted", "session_id", id, "user", sub)
	w.WriteHeader(http.StatusNoContent)
}
