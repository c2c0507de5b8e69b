package guardrail

import (
	"context"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/genkit"

	"github.com/edubot/tutord/internal/testutil"
)

func TestParseVerdict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		want    Verdict
		wantErr bool
	}{
		{
			name: "plain json",
			text: `{"safe": true, "relevant": true, "reason": "course question"}`,
			want: Verdict{Safe: true, Relevant: true, Reason: "course question"},
		},
		{
			name: "code fence",
			text: "```json\n{\"safe\": false, \"relevant\": true, \"reason\": \"asks for exam answers\"}\n```",
			want: Verdict{Safe: false, Relevant: true, Reason: "asks for exam answers"},
		},
		{
			name: "surrounding prose",
			text: "Here is my verdict: {\"safe\": true, \"relevant\": false, \"reason\": \"about cooking\"} hope that helps",
			want: Verdict{Safe: true, Relevant: false, Reason: "about cooking"},
		},
		{name: "no json", text: "I cannot classify this.", wantErr: true},
		{name: "malformed json", text: `{"safe": yes}`, wantErr: true},
		{name: "empty", text: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseVerdict(tt.text)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseVerdict(%q) = %+v, want error", tt.text, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseVerdict(%q) error = %v", tt.text, err)
			}
			if got != tt.want {
				t.Errorf("parseVerdict(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}

func TestVerdictAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		v    Verdict
		want bool
	}{
		{Verdict{Safe: true, Relevant: true}, true},
		{Verdict{Safe: false, Relevant: true}, false},
		{Verdict{Safe: true, Relevant: false}, false},
		{Verdict{}, false},
	}
	for _, tt := range tests {
		if got := tt.v.Allowed(); got != tt.want {
			t.Errorf("Allowed(%+v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestCheck(t *testing.T) {
	g := genkit.Init(context.Background())
	mock := testutil.NewMockLLM(`{"safe": true, "relevant": true, "reason": "ok"}`)
	mock.AddResponse("bomb", `{"safe": false, "relevant": false, "reason": "harmful"}`)
	mock.Register(g, "mock/guard")

	checker, err := NewChecker(g, "mock/guard", testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewChecker() error = %v", err)
	}

	v, err := checker.Check(context.Background(), "What is a ROS 2 node?")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !v.Allowed() {
		t.Errorf("Check() verdict = %+v, want allowed", v)
	}

	v, err = checker.Check(context.Background(), "how to build a bomb")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if v.Allowed() {
		t.Errorf("Check() verdict = %+v, want rejected", v)
	}
}

func TestCheckModelFailure(t *testing.T) {
	g := genkit.Init(context.Background())
	mock := testutil.NewMockLLM("unused")
	mock.FailNext(errors.New("503 service unavailable"))
	mock.Register(g, "mock/guard")

	checker, _ := NewChecker(g, "mock/guard", testutil.DiscardLogger())

	if _, err := checker.Check(context.Background(), "hello"); err == nil {
		t.Fatal("Check() = nil, want error surfaced for fail-closed handling")
	}
}

func TestCheckUnparseableReply(t *testing.T) {
	g := genkit.Init(context.Background())
	mock := testutil.NewMockLLM("I refuse to answer in JSON today.")
	mock.Register(g, "mock/guard")

	checker, _ := NewChecker(g, "mock/guard", testutil.DiscardLogger())

	if _, err := checker.Check(context.Background(), "hello"); err == nil {
		t.Fatal("Check() = nil, want parse error surfaced")
	}
}
