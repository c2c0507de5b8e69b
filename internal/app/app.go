// Package app initializes and wires the application: database pool, Genkit,
// retrieval, guardrail, generator, sessions, health checks. Explicit setup
// on startup, explicit teardown on shutdown, no ambient globals.
package app

import (
	"context"
	"log/slog"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edubot/tutord/internal/config"
	"github.com/edubot/tutord/internal/health"
	"github.com/edubot/tutord/internal/orchestrator"
	"github.com/edubot/tutord/internal/session"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit       *genkit.Genkit
	Pool         *pgxpool.Pool
	Sessions     *session.Store
	Health       *health.Registry
	Orchestrator *orchestrator.Orchestrator

	// cancel stops background work (session janitor).
	cancel context.CancelFunc
}

// Close releases all resources. Safe to call on a partially initialized
// App (Setup calls it on failure).
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("database pool closed")
	}
}
