package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"

	"github.com/edubot/tutord/internal/health"
)

// searchTimeout bounds one full Search call including retries.
const searchTimeout = 10 * time.Second

// Querier is the subset of pgxpool.Pool the searcher needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SearcherConfig configures a Searcher.
type SearcherConfig struct {
	Querier        Querier
	Embedder       ai.Embedder
	Logger         *slog.Logger
	ScoreThreshold float64       // minimum relevance to keep a passage
	Retry          RetryConfig   // zero value means DefaultRetryConfig
	EmbedProbe     *health.Probe // optional passive probe for the embedding service
	IndexProbe     *health.Probe // optional passive probe for the vector index
}

// Searcher answers similarity queries over the textbook corpus.
type Searcher struct {
	q          Querier
	embedder   ai.Embedder
	logger     *slog.Logger
	threshold  float64
	retry      RetryConfig
	embedProbe *health.Probe
	indexProbe *health.Probe
}

// NewSearcher creates a Searcher.
func NewSearcher(cfg SearcherConfig) (*Searcher, error) {
	if cfg.Querier == nil {
		return nil, fmt.Errorf("querier is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	return &Searcher{
		q:          cfg.Querier,
		embedder:   cfg.Embedder,
		logger:     cfg.Logger,
		threshold:  cfg.ScoreThreshold,
		retry:      cfg.Retry,
		embedProbe: cfg.EmbedProbe,
		indexProbe: cfg.IndexProbe,
	}, nil
}

// Search embeds query and returns up to topK passages with relevance at
// or above the threshold, ordered by descending relevance. Both the
// embedding call and the vector query retry transient failures with
// backoff; persistent failures are returned to the caller, which treats
// them as an empty retrieval rather than a failed turn.
func (s *Searcher) Search(ctx context.Context, query string, topK int) ([]Passage, error) {
	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	passages, err := s.nearest(ctx, vec, topK)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("textbook search", "passages", len(passages), "top_k", topK)
	return passages, nil
}

// embed generates the query embedding, truncated to VectorDimension.
func (s *Searcher) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	dim := VectorDimension
	var vec pgvector.Vector

	start := time.Now()
	err := withRetry(ctx, s.retry, "embedding query", func() error {
		resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
			Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
			Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
		})
		if err != nil {
			return err
		}
		if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
			return fmt.Errorf("empty embedding response")
		}
		vec = pgvector.NewVector(resp.Embeddings[0].Embedding)
		return nil
	})
	s.observe(s.embedProbe, time.Since(start), err)

	if err != nil {
		return pgvector.Vector{}, err
	}
	return vec, nil
}

// nearest runs the cosine similarity scan and maps rows to passages.
func (s *Searcher) nearest(ctx context.Context, vec pgvector.Vector, topK int) ([]Passage, error) {
	var passages []Passage

	start := time.Now()
	err := withRetry(ctx, s.retry, "vector search", func() error {
		rows, err := s.q.Query(ctx,
			`SELECT chapter_title, doc_url, content, 1 - (embedding <=> $1) AS relevance
			 FROM textbook_chunks
			 ORDER BY embedding <=> $1
			 LIMIT $2`,
			vec, topK,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		result := make([]Passage, 0, topK)
		for rows.Next() {
			var p Passage
			if err := rows.Scan(&p.ChapterTitle, &p.DocURL, &p.Content, &p.RelevanceScore); err != nil {
				return fmt.Errorf("scanning passage: %w", err)
			}
			if p.RelevanceScore >= s.threshold {
				result = append(result, p)
			}
		}
		if err := rows.Err(); err != nil {
			return err
		}
		passages = result
		return nil
	})
	s.observe(s.indexProbe, time.Since(start), err)

	if err != nil {
		return nil, err
	}
	return passages, nil
}

// IndexCheck returns an active health check verifying the chunk index
// answers queries.
func (s *Searcher) IndexCheck() health.CheckFunc {
	return func(ctx context.Context) error {
		var n int64
		if err := s.q.QueryRow(ctx, `SELECT count(*) FROM textbook_chunks`).Scan(&n); err != nil {
			return fmt.Errorf("querying textbook_chunks: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("textbook index is empty")
		}
		return nil
	}
}

func (s *Searcher) observe(p *health.Probe, latency time.Duration, err error) {
	if p == nil {
		return
	}
	if err != nil {
		p.RecordFailure(latency, err)
		return
	}
	p.RecordSuccess(latency)
}
