// Package profile loads student profiles from PostgreSQL and renders
// the per-student system prompt.
//
// Profile loading is best-effort: the orchestrator falls back to
// Default() on any error, so a missing or slow profile row never fails
// a chat turn.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound indicates no profile row exists for the user.
var ErrNotFound = errors.New("profile not found")

// loadTimeout bounds the point lookup. The query is never retried; on
// any failure the caller degrades to the default profile.
const loadTimeout = 2 * time.Second

// Profile is a student's stored tutoring preferences.
type Profile struct {
	UserID      string
	DisplayName string
	GradeLevel  string
	Subjects    []string
	Difficulty  string
}

// Querier is the subset of pgxpool.Pool the loader needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Loader reads profiles from the user_profiles table.
type Loader struct {
	q      Querier
	logger *slog.Logger
}

// NewLoader creates a profile loader.
func NewLoader(q Querier, logger *slog.Logger) (*Loader, error) {
	if q == nil {
		return nil, fmt.Errorf("querier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{q: q, logger: logger}, nil
}

// Load fetches the profile for userID. Returns ErrNotFound when no row
// exists.
func (l *Loader) Load(ctx context.Context, userID string) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()

	var p Profile
	err := l.q.QueryRow(ctx,
		`SELECT user_id, display_name, grade_level, subjects, difficulty
		 FROM user_profiles
		 WHERE user_id = $1`,
		userID,
	).Scan(&p.UserID, &p.DisplayName, &p.GradeLevel, &p.Subjects, &p.Difficulty)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("loading profile: %w", err)
	}

	return &p, nil
}

// Default returns the profile used when none is stored or loading fails.
func Default(userID string) *Profile {
	return &Profile{
		UserID:     userID,
		Difficulty: "standard",
	}
}

// SystemPrompt renders the tutor system message personalized with the
// student's profile. The prompt pins the assistant to the textbook
// corpus and the citation format the response pipeline verifies.
func (p *Profile) SystemPrompt() string {
	var b strings.Builder

	b.WriteString("You are a patient, encouraging tutor for a university robotics course. ")
	b.WriteString("Answer questions using the course textbook. ")
	b.WriteString("Use the search_textbook tool to find relevant passages before answering, ")
	b.WriteString("and cite every passage you rely on as a markdown link, e.g. [Chapter Title](/docs/path). ")
	b.WriteString("If the textbook does not cover the question, say so instead of guessing. ")
	b.WriteString("Decline questions unrelated to the course.")

	if p.DisplayName != "" {
		fmt.Fprintf(&b, "\n\nThe student's name is %s.", p.DisplayName)
	}
	if p.GradeLevel != "" {
		fmt.Fprintf(&b, " They are at the %s level; match your explanations to that level.", p.GradeLevel)
	}
	if len(p.Subjects) > 0 {
		fmt.Fprintf(&b, " They are currently studying: %s.", strings.Join(p.Subjects, ", "))
	}
	if p.Difficulty != "" {
		fmt.Fprintf(&b, " Preferred difficulty: %s.", p.Difficulty)
	}

	return b.String()
}
