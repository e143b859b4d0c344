package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/knowbot-ai/knowbot/api"
	"github.com/knowbot-ai/knowbot/internal/chat"
	"github.com/knowbot-ai/knowbot/internal/config"
	"github.com/knowbot-ai/knowbot/internal/database"
	"github.com/knowbot-ai/knowbot/internal/embed"
	"github.com/knowbot-ai/knowbot/internal/knowledge"
	"github.com/knowbot-ai/knowbot/internal/llm"
	"github.com/knowbot-ai/knowbot/internal/log"
	"github.com/knowbot-ai/knowbot/internal/retrieval"
	"github.com/knowbot-ai/knowbot/internal/session"
	"github.com/knowbot-ai/knowbot/internal/settings"
	"github.com/knowbot-ai/knowbot/internal/status"
	"github.com/knowbot-ai/knowbot/internal/usage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe loads configuration, wires every component and runs the HTTP
// server until interrupted.
func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON})
	logger.Info("starting knowbot", "version", AppVersion, "config", cfg.String())

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if sqlDB, derr := db.DB(); derr == nil {
			_ = sqlDB.Close()
		}
	}()

	registry, err := knowledge.NewRegistry(db, logger)
	if err != nil {
		return err
	}
	documents, err := knowledge.NewStore(db, logger)
	if err != nil {
		return err
	}
	sessions, err := session.NewManager(db, logger)
	if err != nil {
		return err
	}
	settingsStore, err := settings.NewStore(db, logger)
	if err != nil {
		return err
	}
	stopSwitch, err := status.NewSwitch(db, logger)
	if err != nil {
		return err
	}
	ledger, err := usage.NewLedger(db, logger)
	if err != nil {
		return err
	}
	models, err := chat.NewModelStore(db, cfg.DefaultModel, logger)
	if err != nil {
		return err
	}

	embedder, err := embed.NewOpenAI(cfg.OpenAIAPIKey, cfg.EmbeddingModel, logger)
	if err != nil {
		return err
	}
	retriever := retrieval.New(documents, embed.NewCache(embedder), logger)

	generator, err := llm.NewOpenAI(cfg.OpenAIAPIKey, logger)
	if err != nil {
		return err
	}

	orchestrator := chat.New(
		registry, retriever, settingsStore, sessions,
		stopSwitch, models, generator, ledger,
		chat.Options{TopK: cfg.TopK, HistoryWindow: cfg.HistoryWindow},
		logger,
	)

	server := api.NewServer(api.Deps{
		DB:           db,
		Registry:     registry,
		Documents:    documents,
		Sessions:     sessions,
		Settings:     settingsStore,
		Status:       stopSwitch,
		Usage:        ledger,
		Models:       models,
		Orchestrator: orchestrator,
		Searcher:     retriever,
		Logger:       logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return server.Run(ctx, cfg.HTTPAddr)
}
