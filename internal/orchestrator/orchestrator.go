// Package orchestrator coordinates one chat turn: session lookup, profile
// personalization, guardrail screening and grounded response generation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edubot/tutord/internal/chat"
	"github.com/edubot/tutord/internal/guardrail"
	"github.com/edubot/tutord/internal/knowledge"
	"github.com/edubot/tutord/internal/profile"
	"github.com/edubot/tutord/internal/session"
)

// Refusal texts returned verbatim to the student. A refusal is a normal
// answer at the HTTP level, not an error.
const (
	refusalUnsafe   = "Your question contains inappropriate content. Please rephrase."
	refusalOffTopic = "Your question is not related to the course content."

	// refusalConfidence marks answers the tutor declined to give.
	refusalConfidence = 0.1
)

// ProfileLoader fetches a student profile for personalization.
type ProfileLoader interface {
	Load(ctx context.Context, userID string) (*profile.Profile, error)
}

// Guardrail screens a message before it reaches the tutor model.
type Guardrail interface {
	Check(ctx context.Context, text string) (guardrail.Verdict, error)
}

// Generator produces a grounded tutor answer for a conversation.
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, history []session.Message) (*chat.Result, error)
}

// Response is the outcome of one chat turn.
type Response struct {
	Text         string
	SessionID    string
	Citations    []knowledge.Citation
	Confidence   float64
	ProcessingMS int64
	TokenCount   int
}

// Config holds Orchestrator dependencies. All fields except Logger are
// required.
type Config struct {
	Sessions  *session.Store
	Profiles  ProfileLoader
	Guardrail Guardrail
	Generator Generator
	Logger    *slog.Logger
}

func (cfg *Config) validate() error {
	if cfg.Sessions == nil {
		return errors.New("session store is required")
	}
	if cfg.Profiles == nil {
		return errors.New("profile loader is required")
	}
	if cfg.Guardrail == nil {
		return errors.New("guardrail is required")
	}
	if cfg.Generator == nil {
		return errors.New("generator is required")
	}
	return nil
}

// Orchestrator runs the chat pipeline. Safe for concurrent use; turns on
// the same session are serialized by the session's turn lock.
type Orchestrator struct {
	sessions  *session.Store
	profiles  ProfileLoader
	guardrail Guardrail
	generator Generator
	logger    *slog.Logger
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		sessions:  cfg.Sessions,
		profiles:  cfg.Profiles,
		guardrail: cfg.Guardrail,
		generator: cfg.Generator,
		logger:    logger,
	}, nil
}

// HandleChat runs one full turn. An empty, unknown, expired, or foreign
// sessionID starts a fresh session for userID; the id of the session
// actually used is reported in the response.
func (o *Orchestrator) HandleChat(ctx context.Context, userID, sessionID, message string) (*Response, error) {
	start := time.Now()

	sess, created := o.sessions.GetOrCreate(userID, sessionID)

	// One turn at a time per session: concurrent requests on the same
	// session would interleave history otherwise.
	sess.LockTurn()
	defer sess.UnlockTurn()

	if !sess.ProfileLoaded() {
		o.personalize(ctx, sess, userID)
	}

	sess.Append(session.Message{
		Role:      session.RoleUser,
		Content:   message,
		CreatedAt: time.Now(),
	})

	if refusal := o.screen(ctx, sess, message); refusal != "" {
		return &Response{
			Text:         refusal,
			SessionID:    sess.ID(),
			Citations:    []knowledge.Citation{},
			Confidence:   refusalConfidence,
			ProcessingMS: time.Since(start).Milliseconds(),
			TokenCount:   session.EstimateTokens(refusal),
		}, nil
	}

	result, err := o.generator.Generate(ctx, sess.SystemMessage(), sess.Messages())
	if err != nil {
		o.logger.Error("generation failed",
			"session_id", sess.ID(),
			"error", err,
		)
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	sess.Append(session.Message{
		Role:      session.RoleAssistant,
		Content:   result.Text,
		Citations: result.Citations,
		CreatedAt: time.Now(),
	})

	o.logger.Info("chat turn complete",
		"session_id", sess.ID(),
		"session_created", created,
		"citations", len(result.Citations),
		"confidence", result.Confidence,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Response{
		Text:         result.Text,
		SessionID:    sess.ID(),
		Citations:    result.Citations,
		Confidence:   result.Confidence,
		ProcessingMS: time.Since(start).Milliseconds(),
		TokenCount:   result.TokenCount,
	}, nil
}

// personalize loads the student profile and installs the system prompt.
// Any load failure falls back to the default profile; a missing profile is
// the normal case for new students, not an error.
func (o *Orchestrator) personalize(ctx context.Context, sess *session.Session, userID string) {
	p, err := o.profiles.Load(ctx, userID)
	if err != nil {
		if !errors.Is(err, profile.ErrNotFound) {
			o.logger.Warn("profile load failed, using default",
				"user_id", userID,
				"error", err,
			)
		}
		p = profile.Default(userID)
	}
	sess.SetSystemMessage(p.SystemPrompt())
}

// screen runs the guardrail. It fails closed: a guardrail error rejects
// the message as unsafe. Returns the refusal text, or "" when the message
// may proceed. A refusal is appended to the history as the assistant turn.
func (o *Orchestrator) screen(ctx context.Context, sess *session.Session, message string) string {
	verdict, err := o.guardrail.Check(ctx, message)
	if err != nil {
		o.logger.Warn("guardrail check failed, rejecting message",
			"session_id", sess.ID(),
			"error", err,
		)
		verdict = guardrail.Verdict{Safe: false, Relevant: false, Reason: "guardrail unavailable"}
	}

	if verdict.Allowed() {
		return ""
	}

	refusal := refusalOffTopic
	if !verdict.Safe {
		refusal = refusalUnsafe
	}

	o.logger.Info("message refused",
		"session_id", sess.ID(),
		"safe", verdict.Safe,
		"relevant", verdict.Relevant,
		"reason", verdict.Reason,
	)

	sess.Append(session.Message{
		Role:      session.RoleAssistant,
		Content:   refusal,
		Citations: []knowledge.Citation{},
		CreatedAt: time.Now(),
	})
	return refusal
}
