package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"unicode/utf8"

	"github.com/edubot/tutord/internal/chat"
	"github.com/edubot/tutord/internal/knowledge"
)

const (
	// maxMessageChars caps a single chat message.
	maxMessageChars = 2000

	// maxBodyBytes caps the request body read off the wire.
	maxBodyBytes = 64 << 10
)

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type chatRequest struct {
	Message   string `json:"message"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
}

type chatResponse struct {
	Response        string               `json:"response"`
	SessionID       string               `json:"session_id"`
	Citations       []knowledge.Citation `json:"citations"`
	ConfidenceScore float64              `json:"confidence_score"`
	ProcessingMS    int64                `json:"processing_time_ms"`
	TokenCount      int                  `json:"token_count"`
}

type chatHandler struct {
	chat   ChatService
	logger *slog.Logger
}

// send handles POST /v1/chat.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}

	if msg := validateChatRequest(&req); msg != "" {
		writeError(w, http.StatusBadRequest, "validation_failed", msg)
		return
	}

	// The token subject is the only trusted identity; the body's user_id
	// must agree with it.
	sub, _ := subjectFromContext(r.Context())
	if req.UserID != sub {
		writeError(w, http.StatusForbidden, "forbidden", "user_id does not match the authenticated user")
		return
	}

	resp, err := h.chat.HandleChat(r.Context(), req.UserID, req.SessionID, req.Message)
	if err != nil {
		if errors.Is(err, chat.ErrUnavailable) {
			h.logger.Warn("chat temporarily unavailable", "error", err)
			writeError(w, http.StatusServiceUnavailable, "service_unavailable", "the tutor is temporarily unavailable, try again shortly")
			return
		}
		h.logger.Error("chat turn failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	citations := resp.Citations
	if citations == nil {
		citations = []knowledge.Citation{}
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Response:        resp.Text,
		SessionID:       resp.SessionID,
		Citations:       citations,
		ConfidenceScore: resp.Confidence,
		ProcessingMS:    resp.ProcessingMS,
		TokenCount:      resp.TokenCount,
	})
}

// validateChatRequest returns a client-safe message describing the first
// validation failure, or "" when the request is acceptable.
func validateChatRequest(req *chatRequest) string {
	if req.Message == "" {
		return "message must not be empty"
	}
	if utf8.RuneCountInString(req.Message) > maxMessageChars {
		return "message must be at most 2000 characters"
	}
	if req.UserID == "" {
		return "user_id is required"
	}
	if !userIDPattern.MatchString(req.UserID) {
		return "user_id may only contain letters, digits, underscore and hyphen"
	}
	return ""
}
