// Package app wires the document pipeline together from configuration.
//
// Setup owns construction order and teardown so the serve and CLI entry
// points share one composition root instead of each re-wiring the stack.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kagaj-ai/kagaj/db"
	"github.com/kagaj-ai/kagaj/internal/answer"
	"github.com/kagaj-ai/kagaj/internal/chunk"
	"github.com/kagaj-ai/kagaj/internal/config"
	"github.com/kagaj-ai/kagaj/internal/document"
	"github.com/kagaj-ai/kagaj/internal/extract"
	"github.com/kagaj-ai/kagaj/internal/ingest"
	"github.com/kagaj-ai/kagaj/internal/log"
	"github.com/kagaj-ai/kagaj/internal/ollama"
	"github.com/kagaj-ai/kagaj/internal/retriever"
	"github.com/kagaj-ai/kagaj/internal/splitter"
)

// App holds the constructed pipeline and its shared resources.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Pool   *pgxpool.Pool

	Ollama     *ollama.Client
	Documents  *document.Store
	Chunks     *chunk.Store
	Manager    *ingest.Manager
	Reconciler *ingest.Reconciler
	Retriever  *retriever.Retriever
	Composer   *answer.Composer
}

// Setup builds the full application from cfg: runs migrations, opens the
// connection pool, and wires stores, pipeline, retrieval and answering.
func Setup(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := newLogger(cfg)

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	documents, err := document.NewStore(pool, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating document store: %w", err)
	}
	chunks, err := chunk.NewStore(pool, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating chunk store: %w", err)
	}

	client := ollama.New(ollama.Config{
		BaseURL:         cfg.OllamaHost,
		Model:           cfg.GenerationModel,
		EmbeddingModel:  cfg.EmbeddingModel,
		EmbedTimeout:    cfg.EmbedTimeout,
		GenerateTimeout: cfg.GenerateTimeout,
	}, logger)

	pipeline := ingest.NewPipeline(
		extract.NewPDF(cfg.ExtractTimeout, logger),
		splitter.New(cfg.ChunkSize, cfg.ChunkOverlap),
		client,
		chunks,
		cfg.EmbedWorkers,
		logger,
	)
	manager := ingest.NewManager(pipeline, documents, chunks, logger)
	reconciler := ingest.NewReconciler(chunks, cfg.ReconcileInterval, logger)

	search := retriever.New(client, chunks, logger)
	composer := answer.NewComposer(search, client, cfg.ConfidenceThreshold, logger)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Pool:       pool,
		Ollama:     client,
		Documents:  documents,
		Chunks:     chunks,
		Manager:    manager,
		Reconciler: reconciler,
		Retriever:  search,
		Composer:   composer,
	}, nil
}

// Close stops background work and releases the connection pool. Safe to
// call once regardless of how much of Setup completed on the returned App.
func (a *App) Close() {
	if a.Reconciler != nil {
		a.Reconciler.Stop()
	}
	if a.Manager != nil {
		a.Manager.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	return log.New(log.Config{Level: level, JSON: cfg.LogJSON})
}
