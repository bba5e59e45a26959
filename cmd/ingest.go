package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/kagaj-ai/kagaj/internal/app"
	"github.com/kagaj-ai/kagaj/internal/config"
	"github.com/kagaj-ai/kagaj/internal/document"
)

var ingestTitle string

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Ingest a PDF into the knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd.Context(), args[0])
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "document title (defaults to the file name)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(ctx context.Context, path string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	title := ingestTitle
	if title == "" {
		title = filepath.Base(path)
	}

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	doc, err := a.Documents.Create(ctx, document.Document{
		Title:    title,
		FilePath: path,
		FileSize: info.Size(),
	})
	if err != nil {
		return fmt.Errorf("registering document: %w", err)
	}

	if err := a.Manager.Enqueue(ctx, doc); err != nil {
		return fmt.Errorf("starting ingestion: %w", err)
	}
	fmt.Printf("Ingesting %s (%s)\n", title, doc.ID)

	// The run is asynchronous; poll the status record until it settles.
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.Manager.Cancel(doc.ID)
			return ctx.Err()
		case <-ticker.C:
		}

		current, err := a.Documents.Get(ctx, doc.ID)
		if err != nil {
			return fmt.Errorf("checking status: %w", err)
		}
		switch current.Status {
		case document.StatusProcessed:
			fmt.Printf("Done: %d/%d chunks over %d pages\n",
				current.ProcessedChunks, current.TotalChunks, current.PageCount)
			if current.ProcessedChunks < current.TotalChunks {
				fmt.Printf("Warning: %d chunks failed to embed and were skipped\n",
					current.TotalChunks-current.ProcessedChunks)
			}
			return nil
		case document.StatusError:
			return fmt.Errorf("ingestion failed: %s", current.ProcessingError)
		}
	}
}
