package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kagaj-ai/kagaj/internal/app"
	"github.com/kagaj-ai/kagaj/internal/config"
)

var askContextLimit int

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question grounded in the knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(cmd.Context(), args[0])
	},
}

func init() {
	askCmd.Flags().IntVarP(&askContextLimit, "context", "c", 0, "number of chunks to ground on (default from config)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(ctx context.Context, question string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	limit := askContextLimit
	if limit <= 0 {
		limit = cfg.TopK
	}

	ans, err := a.Composer.Answer(ctx, question, limit)
	if err != nil {
		return fmt.Errorf("answering: %w", err)
	}

	fmt.Println(ans.Text)
	if len(ans.Sources) > 0 {
		fmt.Printf("\nConfidence: %s\nSources:\n", ans.Confidence)
		for _, src := range ans.Sources {
			fmt.Printf("  - %s (page %d, score %.3f)\n",
				src.DocumentTitle, src.Metadata.PageNumber, src.Score)
		}
	}
	return nil
}
