// Package guardrail classifies incoming messages before any retrieval
// or generation happens.
//
// The check is a single cheap model call that returns a JSON verdict.
// Callers fail closed: any model or parse error is treated as a
// rejection, never as a pass.
package guardrail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// checkTimeout bounds the classification call. No retries; a slow
// guardrail would stall every turn.
const checkTimeout = 5 * time.Second

// Verdict is the guardrail classification of one message.
type Verdict struct {
	Safe     bool   `json:"safe"`
	Relevant bool   `json:"relevant"`
	Reason   string `json:"reason"`
}

// Allowed reports whether the message may proceed to generation.
func (v Verdict) Allowed() bool {
	return v.Safe && v.Relevant
}

const systemPrompt = `You are a strict input filter for a robotics course tutoring assistant.
Classify the student message below and respond with ONLY a JSON object:
{"safe": <bool>, "relevant": <bool>, "reason": "<short explanation>"}

"safe" is false when the message requests harmful, abusive, or
academically dishonest content (e.g. exam answers to submit as their own).
"relevant" is true when the message concerns the robotics course, its
textbook, or studying for it. Greetings and meta-questions about the
tutor count as relevant.`

// Checker runs guardrail classifications against a small model.
type Checker struct {
	g      *genkit.Genkit
	model  string
	logger *slog.Logger
}

// NewChecker creates a guardrail checker using the given
// provider-qualified model name.
func NewChecker(g *genkit.Genkit, model string, logger *slog.Logger) (*Checker, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{g: g, model: model, logger: logger}, nil
}

// Check classifies message. Errors mean the verdict is unknown; callers
// must treat that as a rejection.
func (c *Checker) Check(ctx context.Context, message string) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.model),
		ai.WithMessages(
			ai.NewSystemMessage(ai.NewTextPart(systemPrompt)),
			ai.NewUserMessage(ai.NewTextPart(message)),
		),
	)
	if err != nil {
		return Verdict{}, fmt.Errorf("guardrail call: %w", err)
	}

	verdict, err := parseVerdict(resp.Text())
	if err != nil {
		c.logger.Warn("unparseable guardrail verdict", "error", err)
		return Verdict{}, err
	}
	return verdict, nil
}

// parseVerdict extracts the JSON verdict from the model's text reply,
// tolerating surrounding prose and markdown code fences.
func parseVerdict(text string) (Verdict, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return Verdict{}, fmt.Errorf("no JSON object in guardrail reply")
	}

	var v Verdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return Verdict{}, fmt.Errorf("decoding guardrail verdict: %w", err)
	}
	return v, nil
}
