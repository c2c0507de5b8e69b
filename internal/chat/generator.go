// Package chat generates tutor responses with Genkit, grounding answers in
// textbook passages retrieved through a search tool and verifying that every
// citation in the answer points at a passage actually retrieved during the
// same call.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"

	"github.com/edubot/tutord/internal/health"
	"github.com/edubot/tutord/internal/knowledge"
	"github.com/edubot/tutord/internal/session"
)

// ErrUnavailable is returned when the model cannot be reached, either
// because the call failed or because the circuit breaker is open.
var ErrUnavailable = errors.New("generation unavailable")

const (
	toolName = "search_textbook"

	// snippetMaxRunes caps the passage text handed to the model per chunk.
	snippetMaxRunes = 300

	// chunkSeparator joins formatted passages in the tool output.
	chunkSeparator = "\n\n---\n\n"

	// uncitedConfidence is reported when the answer carries no verified
	// citations.
	uncitedConfidence = 0.5
)

// citationPattern matches markdown links into the textbook doc tree,
// e.g. [PID Control](/docs/control/pid).
var citationPattern = regexp.MustCompile(`\[([^\]]+)\]\((/docs/[^)]+)\)`)

// Searcher retrieves textbook passages relevant to a query.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]knowledge.Passage, error)
}

// Config holds Generator dependencies and tuning. Genkit, Searcher and
// ModelName are required.
type Config struct {
	Genkit    *genkit.Genkit
	Searcher  Searcher
	Logger    *slog.Logger
	ModelName string // Provider-qualified, e.g. "googleai/gemini-2.5-flash"

	Temperature float32 // Sampling temperature
	MaxTokens   int     // Response token cap; 0 = provider default
	MaxTurns    int     // Tool-calling round limit; 0 = default 3
	TopK        int     // Passages per search tool call; 0 = default 5

	Breaker  CircuitBreakerConfig
	GenProbe *health.Probe // Optional passive health probe
}

func (cfg *Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Searcher == nil {
		return errors.New("searcher is required")
	}
	if cfg.ModelName == "" {
		return errors.New("model name is required")
	}
	return nil
}

// Result is one generated tutor answer.
type Result struct {
	Text       string
	Citations  []knowledge.Citation
	Confidence float64
	TokenCount int
}

// Generator produces grounded answers. All configuration is captured
// immutably at construction; Generate is safe for concurrent use.
type Generator struct {
	g           *genkit.Genkit
	searcher    Searcher
	logger      *slog.Logger
	modelName   string
	temperature float32
	maxTokens   int
	maxTurns    int
	topK        int
	breaker     *CircuitBreaker
	probe       *health.Probe
	tool        ai.ToolRef
}

type searchInput struct {
	Query string `json:"query" jsonschema_description:"What to look up in the course textbook"`
}

// New creates a Generator and registers its search_textbook tool with
// Genkit. Register only one Generator per Genkit instance.
func New(cfg Config) (*Generator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 3
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}

	gen := &Generator{
		g:           cfg.Genkit,
		searcher:    cfg.Searcher,
		logger:      logger,
		modelName:   cfg.ModelName,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		maxTurns:    maxTurns,
		topK:        topK,
		breaker:     NewCircuitBreaker(cfg.Breaker),
		probe:       cfg.GenProbe,
	}

	gen.tool = genkit.DefineTool(cfg.Genkit, toolName,
		"Search the robotics course textbook for passages relevant to the student's question. "+
			"Returns excerpts with a Source line per passage; cite sources in your answer "+
			"using the exact markdown links from the Source lines.",
		gen.searchTextbook)

	return gen, nil
}

// searchTextbook is the Genkit tool handler. Retrieved passages are
// recorded on the request recorder so citations can be verified later.
// Retrieval failures degrade to an empty result instead of failing the
// turn: the student still gets an answer, just without citations.
func (gen *Generator) searchTextbook(tc *ai.ToolContext, in searchInput) (string, error) {
	passages, err := gen.searcher.Search(tc.Context, in.Query, gen.topK)
	if err != nil {
		gen.logger.Warn("textbook search failed", "error", err)
		return "The textbook search is temporarily unavailable. Answer from general knowledge and say the textbook could not be consulted.", nil
	}

	if rec := recorderFrom(tc.Context); rec != nil {
		rec.record(passages)
	}

	if len(passages) == 0 {
		return "No relevant content found in the textbook for this question.", nil
	}
	return formatPassages(passages), nil
}

// formatPassages renders retrieval results for the model: a truncated
// excerpt plus a Source line the model can copy verbatim as a citation.
func formatPassages(passages []knowledge.Passage) string {
	chunks := make([]string, 0, len(passages))
	for _, p := range passages {
		var sb strings.Builder
		sb.WriteString(truncateRunes(p.Content, snippetMaxRunes))
		sb.WriteString("\n\nSource: [")
		sb.WriteString(p.ChapterTitle)
		sb.WriteString("](")
		sb.WriteString(p.DocURL)
		sb.WriteString(")")
		chunks = append(chunks, sb.String())
	}
	return strings.Join(chunks, chunkSeparator)
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// Generate produces an answer for the conversation. The model may call the
// search tool up to maxTurns rounds. Model failures are not retried; the
// circuit breaker decides when to stop trying, and both an open circuit and
// a failed call surface as ErrUnavailable.
func (gen *Generator) Generate(ctx context.Context, systemPrompt string, history []session.Message) (*Result, error) {
	if err := gen.breaker.Allow(); err != nil {
		gen.logger.Warn("rejecting generation, circuit open")
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}

	ctx, rec := withRecorder(ctx)
	messages := toModelMessages(systemPrompt, history)

	genCfg := &genai.GenerateContentConfig{}
	if gen.temperature > 0 {
		temp := gen.temperature
		genCfg.Temperature = &temp
	}
	if gen.maxTokens > 0 {
		genCfg.MaxOutputTokens = int32(gen.maxTokens)
	}

	start := time.Now()
	resp, err := genkit.Generate(ctx, gen.g,
		ai.WithModelName(gen.modelName),
		ai.WithMessages(messages...),
		ai.WithTools(gen.tool),
		ai.WithMaxTurns(gen.maxTurns),
		ai.WithConfig(genCfg),
	)
	latency := time.Since(start)

	if err != nil {
		gen.breaker.Failure()
		if gen.probe != nil {
			gen.probe.RecordFailure(latency, err)
		}
		gen.logger.Error("generation failed", "error", err, "latency", latency)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	gen.breaker.Success()
	if gen.probe != nil {
		gen.probe.RecordSuccess(latency)
	}

	text := resp.Text()
	citations, confidence := verifiedCitations(text, rec)

	tokens := 0
	if resp.Usage != nil && resp.Usage.TotalTokens > 0 {
		tokens = resp.Usage.TotalTokens
	} else {
		tokens = session.EstimateTokens(text)
	}

	gen.logger.Debug("generation complete",
		"latency", latency,
		"citations", len(citations),
		"confidence", confidence,
		"tokens", tokens,
	)

	return &Result{
		Text:       text,
		Citations:  citations,
		Confidence: confidence,
		TokenCount: tokens,
	}, nil
}

// verifiedCitations parses markdown doc links from the answer and keeps
// only those whose URL matches a passage retrieved during this call,
// deduplicated in order of first appearance. Confidence is the highest
// relevance score among the kept citations, or the uncited default.
func verifiedCitations(text string, rec *recorder) ([]knowledge.Citation, float64) {
	citations := []knowledge.Citation{}
	seen := make(map[string]bool)

	for _, match := range citationPattern.FindAllStringSubmatch(text, -1) {
		docURL := match[2]
		if seen[docURL] {
			continue
		}
		passage, ok := rec.lookup(docURL)
		if !ok {
			continue
		}
		seen[docURL] = true
		citations = append(citations, passage.Citation)
	}

	if len(citations) == 0 {
		return citations, uncitedConfidence
	}

	confidence := citations[0].RelevanceScore
	for _, c := range citations[1:] {
		if c.RelevanceScore > confidence {
			confidence = c.RelevanceScore
		}
	}
	return citations, confidence
}

// toModelMessages converts the stored conversation to Genkit messages,
// system prompt first.
func toModelMessages(systemPrompt string, history []session.Message) []*ai.Message {
	messages := make([]*ai.Message, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, ai.NewSystemMessage(ai.NewTextPart(systemPrompt)))
	}
	for _, msg := range history {
		switch msg.Role {
		case session.RoleUser:
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(msg.Content)))
		case session.RoleAssistant:
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(msg.Content)))
		}
	}
	return messages
}
