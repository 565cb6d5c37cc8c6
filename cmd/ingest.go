package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bogachat/boga/internal/app"
	"github.com/bogachat/boga/internal/config"
	"github.com/bogachat/boga/internal/log"
)

var (
	ingestTitle  string
	ingestAuthor string
	ingestSource string
	ingestTags   string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Ingest a text file into the document store",
	Long: `Ingest splits a UTF-8 text file into overlapping chunks, embeds each
chunk, and persists them for retrieval. The command line counterpart of
POST /documents/upload.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd.Context(), args[0])
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "document title")
	ingestCmd.Flags().StringVar(&ingestAuthor, "author", "", "document author")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "document source")
	ingestCmd.Flags().StringVar(&ingestTags, "tags", "", "comma-separated tags")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(parent context.Context, path string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if strings.TrimSpace(string(content)) == "" {
		return fmt.Errorf("%s is empty", path)
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(log.Config{})

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	metadata := map[string]any{
		"filename": filepath.Base(path),
	}
	if ingestTitle != "" {
		metadata["title"] = ingestTitle
	}
	if ingestAuthor != "" {
		metadata["author"] = ingestAuthor
	}
	if ingestSource != "" {
		metadata["source"] = ingestSource
	}
	if ingestTags != "" {
		var tags []string
		for _, t := range strings.Split(ingestTags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
		if len(tags) > 0 {
			metadata["tags"] = tags
		}
	}

	documentID := uuid.NewString()
	chunkIDs, err := a.Ingestor.Ingest(ctx, documentID, string(content), metadata,
		cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", path, err)
	}

	fmt.Printf("Ingested %s: document %s, %d chunks\n", path, documentID, len(chunkIDs))
	return nil
}
