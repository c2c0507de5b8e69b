// Package api exposes the tutor over HTTP: an authenticated chat endpoint,
// session inspection, and a health report.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/edubot/tutord/internal/health"
	"github.com/edubot/tutord/internal/orchestrator"
	"github.com/edubot/tutord/internal/session"
)

// ChatService runs one chat turn. Implemented by orchestrator.Orchestrator.
type ChatService interface {
	HandleChat(ctx context.Context, userID, sessionID, message string) (*orchestrator.Response, error)
}

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger        *slog.Logger
	Chat          ChatService      // Required
	Sessions      *session.Store   // Required
	Health        *health.Registry // Required
	AuthSecret    []byte           // Required: 32+ bytes, signs bearer tokens
	CORSOrigins   []string         // Allowed origins for CORS
	TrustProxy    bool             // Trust X-Real-IP/X-Forwarded-For for logging
	RatePerMinute int              // Per-user chat rate limit (0 = default 20)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Chat == nil {
		return nil, errors.New("chat service is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.Health == nil {
		return nil, errors.New("health registry is required")
	}
	if len(cfg.AuthSecret) < 32 {
		return nil, errors.New("auth secret must be at least 32 bytes")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ch := &chatHandler{chat: cfg.Chat, logger: logger}
	sh := &sessionHandler{store: cfg.Sessions, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat", ch.send)
	mux.HandleFunc("GET /v1/sessions/{id}", sh.get)
	mux.HandleFunc("DELETE /v1/sessions/{id}", sh.delete)

	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 20
	}
	rl := newRateLimiter(perMinute)

	// Middleware stack, outermost first:
	//   Recovery → RequestID → Logging → CORS → Auth → RateLimit → Routes
	// RequestID precedes Logging so request_id appears in log attributes;
	// CORS precedes Auth so preflight OPTIONS never needs a token; the
	// rate limiter keys on the authenticated subject, so it sits inside Auth.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, logger)(handler)
	handler = authMiddleware(cfg.AuthSecret, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger, cfg.TrustProxy)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health stays outside the authenticated stack so load balancers can
	// probe without credentials.
	topMux := http.NewServeMux()
	topMux.Handle("GET /v1/health", healthHandler(cfg.Health, cfg.Logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
