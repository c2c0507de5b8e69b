package profile

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
)

type fakeRow struct {
	profile *Profile
	err     error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.profile.UserID
	*(dest[1].(*string)) = r.profile.DisplayName
	*(dest[2].(*string)) = r.profile.GradeLevel
	*(dest[3].(*[]string)) = r.profile.Subjects
	*(dest[4].(*string)) = r.profile.Difficulty
	return nil
}

type fakeQuerier struct {
	row   fakeRow
	calls int
}

func (q *fakeQuerier) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	q.calls++
	return q.row
}

func TestLoad(t *testing.T) {
	want := &Profile{
		UserID:      "student_42",
		DisplayName: "Ada",
		GradeLevel:  "undergraduate",
		Subjects:    []string{"robotics"},
		Difficulty:  "standard",
	}
	loader, err := NewLoader(&fakeQuerier{row: fakeRow{profile: want}}, nil)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	got, err := loader.Load(context.Background(), "student_42")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.DisplayName != "Ada" || got.GradeLevel != "undergraduate" {
		t.Errorf("Load() = %+v", got)
	}
}

func TestLoadNotFound(t *testing.T) {
	loader, _ := NewLoader(&fakeQuerier{row: fakeRow{err: pgx.ErrNoRows}}, nil)

	if _, err := loader.Load(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() = %v, want ErrNotFound", err)
	}
}

func TestLoadQueryError(t *testing.T) {
	dbErr := errors.New("connection refused")
	loader, _ := NewLoader(&fakeQuerier{row: fakeRow{err: dbErr}}, nil)

	if _, err := loader.Load(context.Background(), "u1"); !errors.Is(err, dbErr) {
		t.Fatalf("Load() = %v, want wrapped query error", err)
	}
}

func TestDefault(t *testing.T) {
	p := Default("u1")
	if p.UserID != "u1" {
		t.Errorf("UserID = %q", p.UserID)
	}
	if p.SystemPrompt() == "" {
		t.Error("default profile must still render a system prompt")
	}
}

func TestSystemPromptPersonalization(t *testing.T) {
	p := &Profile{
		UserID:      "u1",
		DisplayName: "Ada",
		GradeLevel:  "graduate",
		Subjects:    []string{"navigation", "perception"},
		Difficulty:  "advanced",
	}

	prompt := p.SystemPrompt()
	for _, want := range []string{"Ada", "graduate", "navigation, perception", "advanced", "search_textbook"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("SystemPrompt() missing %q:\n%s", want, prompt)
		}
	}
}

func TestSystemPromptOmitsEmptyFields(t *testing.T) {
	prompt := Default("u1").SystemPrompt()
	if strings.Contains(prompt, "name is") || strings.Contains(prompt, "studying") {
		t.Errorf("SystemPrompt() rendered empty fields:\n%s", prompt)
	}
}
