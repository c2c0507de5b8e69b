package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/edubot/tutord/internal/config"
	"github.com/edubot/tutord/internal/testutil"
)

// testConfig points at a loopback port nothing listens on, so setup
// fails fast at the migration step without touching a real database.
func testConfig() *config.Config {
	return &config.Config{
		ModelName:          "gemini-2.5-flash",
		GuardModelName:     "gemini-2.5-flash-lite",
		EmbedderModel:      "gemini-embedding-001",
		Temperature:        0.7,
		MaxTokens:          2048,
		MaxTurns:           3,
		RetrievalTopK:      5,
		ScoreThreshold:     0.4,
		SessionTTLMinutes:  60,
		PostgresHost:       "127.0.0.1",
		PostgresPort:       1,
		PostgresUser:       "tutord",
		PostgresPassword:   "unused",
		PostgresDBName:     "tutord",
		PostgresSSLMode:    "disable",
		AuthSecret:         strings.Repeat("s", 32),
		RateLimitPerMinute: 20,
	}
}

func TestSetupFailsWithoutDatabase(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a, err := Setup(ctx, testConfig(), testutil.DiscardLogger())
	if err == nil {
		a.Close()
		t.Fatal("Setup() with unreachable database, want error")
	}
	if !strings.Contains(err.Error(), "migrations") {
		t.Errorf("Setup() error = %v, want migration failure", err)
	}
}

func TestSetupIngestFailsWithoutDatabase(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	in, pool, err := SetupIngest(ctx, testConfig(), testutil.DiscardLogger())
	if err == nil {
		pool.Close()
		t.Fatal("SetupIngest() with unreachable database, want error")
	}
	if in != nil {
		t.Errorf("SetupIngest() ingester = %v, want nil on error", in)
	}
}

func TestCloseOnPartialApp(t *testing.T) {
	// Setup calls Close on any failure, so it must tolerate every
	// degree of partial initialization.
	(&App{}).Close()

	canceled := false
	a := &App{
		Logger: testutil.DiscardLogger(),
		cancel: func() { canceled = true },
	}
	a.Close()
	if !canceled {
		t.Error("Close() did not cancel background work")
	}
}
