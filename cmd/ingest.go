package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/edubot/tutord/internal/app"
	"github.com/edubot/tutord/internal/config"
)

var ingestDocsDir string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index course documents into the textbook search corpus",
	Long: `ingest walks a directory of markdown course documents, embeds their
content, and writes the chunks to the textbook_chunks table. Re-running
it replaces the chunks of every document it finds, so it is safe to use
for both initial indexing and content updates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd.Context())
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDocsDir, "docs", "./docs", "directory of markdown course documents")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()

	in, pool, err := app.SetupIngest(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing ingester: %w", err)
	}
	defer pool.Close()

	res, err := in.Run(ctx, ingestDocsDir)
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", ingestDocsDir, err)
	}
	if res.FilesFailed > 0 {
		return fmt.Errorf("%d of %d documents failed, see log for details",
			res.FilesFailed, res.FilesFailed+res.FilesIndexed)
	}
	return nil
}
