// Package app wires the application together: configuration, logging,
// tracing, database, provider client, tools, and the conversation
// orchestrator. Commands build an App and pull what they need from it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvus-ai/corvid/internal/catalog"
	"github.com/corvus-ai/corvid/internal/chunker"
	"github.com/corvus-ai/corvid/internal/config"
	"github.com/corvus-ai/corvid/internal/conversation"
	"github.com/corvus-ai/corvid/internal/database"
	"github.com/corvus-ai/corvid/internal/ingest"
	"github.com/corvus-ai/corvid/internal/log"
	"github.com/corvus-ai/corvid/internal/observability"
	"github.com/corvus-ai/corvid/internal/provider"
	"github.com/corvus-ai/corvid/internal/tool"
	"github.com/corvus-ai/corvid/internal/vectorindex"
)

// App is the application container. All fields are ready to use after
// New returns.
type App struct {
	Config   *config.Config
	Logger   log.Logger
	Pool     *pgxpool.Pool
	Provider *provider.Client
	Index    *vectorindex.Index
	Catalog  *catalog.Store
	Tools    *tool.Registry
	Store    *conversation.Store
	Orch     *conversation.Orchestrator
	Pipeline *ingest.Pipeline

	tracingShutdown func(context.Context) error
}

// New builds the application from configuration. The caller must Close
// the returned App.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := log.New(log.Config{Level: parseLevel(cfg.LogLevel), JSON: cfg.LogJSON})
	slog.SetDefault(logger)

	tracingShutdown, err := observability.Setup(ctx, cfg.Tracing, logger)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	client := provider.NewClient(provider.Config{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		EmbedModel: cfg.EmbedModel,
	}, logger)

	index := vectorindex.New(pool, logger)
	products := catalog.New(pool, logger)

	lookup := tool.NewLookup(client, index, products, ingest.CollectionKnowledge, logger)
	defs, err := lookup.Definitions()
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("building tools: %w", err)
	}
	registry := tool.NewRegistry(logger)
	if err := registry.Register(defs...); err != nil {
		pool.Close()
		return nil, fmt.Errorf("registering tools: %w", err)
	}

	store := conversation.NewStore(pool, logger)
	orch, err := conversation.New(conversation.Config{
		Completer:    client,
		Tools:        registry,
		Store:        store,
		Logger:       logger,
		SystemPrompt: cfg.SystemPrompt,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
		TokenBudget:  cfg.TokenBudget,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("building orchestrator: %w", err)
	}

	pipeline := ingest.New(client, index,
		chunker.Options{MaxChunkSize: cfg.MaxChunkSize, Overlap: cfg.ChunkOverlap, PreserveStructure: true}, logger)

	return &App{
		Config:          cfg,
		Logger:          logger,
		Pool:            pool,
		Provider:        client,
		Index:           index,
		Catalog:         products,
		Tools:           registry,
		Store:           store,
		Orch:            orch,
		Pipeline:        pipeline,
		tracingShutdown: tracingShutdown,
	}, nil
}

// Close flushes traces and releases the database pool.
func (a *App) Close(ctx context.Context) error {
	var err error
	if a.tracingShutdown != nil {
		err = a.tracingShutdown(ctx)
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	return err
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
