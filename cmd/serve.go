package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kagaj-ai/kagaj/internal/api"
	"github.com/kagaj-ai/kagaj/internal/app"
	"github.com/kagaj-ai/kagaj/internal/config"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server_addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	a.Reconciler.Start(ctx)

	server := api.NewServer(
		api.NewDocumentHandler(a.Documents, a.Manager, a.Logger),
		api.NewSearchHandler(a.Retriever, a.Composer, a.Logger),
		api.NewHealthHandler(a.Ollama, a.Pool, a.Logger),
		api.ServerConfig{
			RateRPS:   cfg.RateRPS,
			RateBurst: cfg.RateBurst,
			Logger:    a.Logger,
		},
	)

	addr := serveAddr
	if addr == "" {
		addr = cfg.ServerAddr
	}
	return server.Run(ctx, addr)
}
