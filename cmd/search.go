package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kagaj-ai/kagaj/internal/app"
	"github.com/kagaj-ai/kagaj/internal/config"
)

var searchK int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Show the chunks most similar to a query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSearch(cmd.Context(), args[0])
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchK, "top", "k", 0, "number of results (default from config)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(ctx context.Context, query string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	k := searchK
	if k <= 0 {
		k = cfg.TopK
	}

	matches, err := a.Retriever.Search(ctx, query, k)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}
	if len(matches) == 0 {
		fmt.Println("No matches.")
		return nil
	}

	for i, m := range matches {
		snippet := m.Content
		if len(snippet) > 200 {
			snippet = snippet[:200] + "..."
		}
		fmt.Printf("%d. %s (page %d, score %.3f)\n   %s\n",
			i+1, m.DocumentTitle, m.Metadata.PageNumber, m.Score,
			strings.ReplaceAll(snippet, "\n", " "))
	}
	return nil
}
