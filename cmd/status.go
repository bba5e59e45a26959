package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kagaj-ai/kagaj/internal/app"
	"github.com/kagaj-ai/kagaj/internal/config"
	"github.com/kagaj-ai/kagaj/internal/document"
)

var statusCmd = &cobra.Command{
	Use:   "status [document-id]",
	Short: "Show model host health and document status",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := ""
		if len(args) == 1 {
			id = args[0]
		}
		return runStatus(cmd.Context(), id)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(ctx context.Context, id string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	if id != "" {
		doc, err := a.Documents.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("getting document: %w", err)
		}
		printDocument(doc)
		return nil
	}

	health := a.Ollama.CheckHealth(ctx)
	fmt.Printf("Model host: %s (%s)\n", health.Status, health.BaseURL)
	if health.Error != "" {
		fmt.Printf("  %s\n", health.Error)
	}

	docs, err := a.Documents.List(ctx, 100)
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}
	chunkCount, err := a.Chunks.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting chunks: %w", err)
	}

	fmt.Printf("Documents: %d, chunks: %d\n", len(docs), chunkCount)
	for _, doc := range docs {
		printDocument(doc)
	}
	return nil
}

func printDocument(doc document.Document) {
	fmt.Printf("  %s  %-10s  %s", doc.ID, doc.Status, doc.Title)
	switch doc.Status {
	case document.StatusProcessing:
		fmt.Printf("  (%.0f%%)", doc.Progress())
	case document.StatusProcessed:
		fmt.Printf("  (%d/%d chunks)", doc.ProcessedChunks, doc.TotalChunks)
	case document.StatusError:
		fmt.Printf("  (%s)", doc.ProcessingError)
	}
	fmt.Println()
}
