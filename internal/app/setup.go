package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edubot/tutord/db"
	"github.com/edubot/tutord/internal/chat"
	"github.com/edubot/tutord/internal/config"
	"github.com/edubot/tutord/internal/guardrail"
	"github.com/edubot/tutord/internal/health"
	"github.com/edubot/tutord/internal/ingest"
	"github.com/edubot/tutord/internal/knowledge"
	"github.com/edubot/tutord/internal/orchestrator"
	"github.com/edubot/tutord/internal/profile"
	"github.com/edubot/tutord/internal/session"
)

// Setup creates and initializes the application. On error, everything
// already initialized is released before returning.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with gemini provider")
	}
	a.Genkit = g

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}

	registry := health.NewRegistry()
	a.Health = registry
	registry.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})

	searcher, err := knowledge.NewSearcher(knowledge.SearcherConfig{
		Querier:        pool,
		Embedder:       embedder,
		Logger:         logger,
		ScoreThreshold: cfg.ScoreThreshold,
		Retry:          knowledge.DefaultRetryConfig(),
		EmbedProbe:     registry.NewProbe("embedding_service"),
		IndexProbe:     registry.NewProbe("vector_index"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating searcher: %w", err)
	}
	registry.Register("textbook_index", searcher.IndexCheck())

	generator, err := chat.New(chat.Config{
		Genkit:      g,
		Searcher:    searcher,
		Logger:      logger,
		ModelName:   cfg.FullModelName(),
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		MaxTurns:    cfg.MaxTurns,
		TopK:        cfg.RetrievalTopK,
		GenProbe:    registry.NewProbe("generative_model"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating generator: %w", err)
	}

	checker, err := guardrail.NewChecker(g, cfg.FullGuardModelName(), logger)
	if err != nil {
		return nil, fmt.Errorf("creating guardrail checker: %w", err)
	}
	loader, err := profile.NewLoader(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating profile loader: %w", err)
	}

	// Janitor lifetime is bound to the app, not the setup call.
	janitorCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel

	ttl := time.Duration(cfg.SessionTTLMinutes) * time.Minute
	a.Sessions = session.NewStore(ttl, logger)
	a.Sessions.StartCleanup(janitorCtx)

	orch, err := orchestrator.New(orchestrator.Config{
		Sessions:  a.Sessions,
		Profiles:  loader,
		Guardrail: checker,
		Generator: generator,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}
	a.Orchestrator = orch

	logger.Info("application initialized",
		"model", cfg.FullModelName(),
		"guard_model", cfg.FullGuardModelName(),
		"embedder", cfg.EmbedderModel,
		"session_ttl", ttl,
	)
	return a, nil
}

// SetupIngest wires only what the ingest command needs: the database
// pool and the embedding model. The caller owns the returned pool.
func SetupIngest(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*ingest.Ingester, *pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		pool.Close()
		return nil, nil, errors.New("initializing genkit with gemini provider")
	}
	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		pool.Close()
		return nil, nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}

	in, err := ingest.New(ingest.Config{
		DB:       pool,
		Embedder: embedder,
		Logger:   logger,
	})
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("creating ingester: %w", err)
	}
	return in, pool, nil
}

// provideDBPool runs migrations and creates the PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
