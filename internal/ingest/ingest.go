// Package ingest builds the textbook_chunks index from a directory of
// markdown course documents.
//
// Each file becomes one document: the first level-1 heading is the
// chapter title and the file's path relative to the docs root becomes
// its doc URL ("/docs/<path-without-extension>"). The content is split
// into chunks sized for the embedding model, embedded in one batch per
// file, and written to Postgres. Re-ingesting a file replaces its
// previous chunks, so the command is safe to run repeatedly.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"

	"github.com/edubot/tutord/internal/knowledge"
)

// docURLPrefix is prepended to every derived document path. Citations
// in generated answers are only accepted when they point under it.
const docURLPrefix = "/docs"

// maxFileBytes guards against embedding requests that would blow the
// model's input limit even after chunking.
const maxFileBytes = 1 << 20 // 1 MiB

// Execer is the subset of pgxpool.Pool the ingester writes through.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Config configures an Ingester.
type Config struct {
	DB        Execer
	Embedder  ai.Embedder
	Logger    *slog.Logger
	ChunkSize int // maximum chunk length in runes, 0 means DefaultChunkSize
}

// Result summarizes one ingestion run.
type Result struct {
	FilesIndexed  int
	FilesSkipped  int
	FilesFailed   int
	ChunksWritten int
	Duration      time.Duration
}

// Ingester walks a docs tree and writes embedded chunks to Postgres.
type Ingester struct {
	db        Execer
	embedder  ai.Embedder
	logger    *slog.Logger
	chunkSize int
}

// New creates an Ingester.
func New(cfg Config) (*Ingester, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("db is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return &Ingester{
		db:        cfg.DB,
		embedder:  cfg.Embedder,
		logger:    cfg.Logger,
		chunkSize: cfg.ChunkSize,
	}, nil
}

// Run ingests every markdown file under dir. Individual file failures
// are logged and counted, not fatal, so one broken document cannot
// abort a full reindex.
func (in *Ingester) Run(ctx context.Context, dir string) (*Result, error) {
	start := time.Now()

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving docs directory: %w", err)
	}

	// Reads go through os.Root so symlinks cannot escape the docs tree.
	root, err := os.OpenRoot(absDir)
	if err != nil {
		return nil, fmt.Errorf("opening docs directory: %w", err)
	}
	defer func() {
		_ = root.Close()
	}()

	result := &Result{}
	err = filepath.WalkDir(absDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			result.FilesFailed++
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != absDir && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !isMarkdown(name) {
			result.FilesSkipped++
			return nil
		}

		relPath, err := filepath.Rel(absDir, path)
		if err != nil {
			result.FilesFailed++
			return nil
		}

		n, err := in.ingestFile(ctx, root, relPath)
		if err != nil {
			// A dead context means every remaining file would fail too.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			in.logger.Error("ingesting document failed", "path", relPath, "error", err)
			result.FilesFailed++
			return nil
		}

		result.FilesIndexed++
		result.ChunksWritten += n
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	in.logger.Info("ingestion finished",
		"indexed", result.FilesIndexed,
		"skipped", result.FilesSkipped,
		"failed", result.FilesFailed,
		"chunks", result.ChunksWritten,
		"duration", result.Duration,
	)
	return result, nil
}

// ingestFile embeds one document and replaces its rows in
// textbook_chunks. Returns the number of chunks written.
func (in *Ingester) ingestFile(ctx context.Context, root *os.Root, relPath string) (int, error) {
	info, err := root.Stat(relPath)
	if err != nil {
		return 0, fmt.Errorf("stat: %w", err)
	}
	if info.Size() > maxFileBytes {
		return 0, fmt.Errorf("file is %d bytes, limit is %d", info.Size(), maxFileBytes)
	}

	raw, err := root.ReadFile(relPath)
	if err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}

	docURL := DocURL(relPath)
	title := ChapterTitle(string(raw), relPath)
	chunks := SplitChunks(string(raw), in.chunkSize)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("no content after chunking")
	}

	vectors, err := in.embedChunks(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embedding: %w", err)
	}

	// Replace rather than append so re-running ingestion never leaves
	// stale chunks behind a rewritten document.
	if _, err := in.db.Exec(ctx, `DELETE FROM textbook_chunks WHERE doc_url = $1`, docURL); err != nil {
		return 0, fmt.Errorf("clearing previous chunks: %w", err)
	}
	for i, chunk := range chunks {
		_, err := in.db.Exec(ctx,
			`INSERT INTO textbook_chunks (chapter_title, doc_url, content, embedding) VALUES ($1, $2, $3, $4)`,
			title, docURL, chunk, vectors[i],
		)
		if err != nil {
			return 0, fmt.Errorf("inserting chunk %d: %w", i, err)
		}
	}

	in.logger.Debug("document ingested", "doc_url", docURL, "chunks", len(chunks))
	return len(chunks), nil
}

// embedChunks embeds all chunks of one document in a single request,
// truncated to the index's vector width.
func (in *Ingester) embedChunks(ctx context.Context, chunks []string) ([]pgvector.Vector, error) {
	docs := make([]*ai.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = ai.DocumentFromText(c, nil)
	}

	dim := knowledge.VectorDimension
	resp, err := in.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   docs,
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(resp.Embeddings), len(chunks))
	}

	vectors := make([]pgvector.Vector, len(chunks))
	for i, e := range resp.Embeddings {
		if len(e.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding for chunk %d", i)
		}
		vectors[i] = pgvector.NewVector(e.Embedding)
	}
	return vectors, nil
}

// DocURL maps a path relative to the docs root onto the site URL the
// chat API cites, e.g. "control/pid.md" becomes "/docs/control/pid".
func DocURL(relPath string) string {
	p := filepath.ToSlash(relPath)
	p = strings.TrimSuffix(p, filepath.Ext(p))
	return docURLPrefix + "/" + p
}

func isMarkdown(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown", ".mdx":
		return true
	}
	return false
}
