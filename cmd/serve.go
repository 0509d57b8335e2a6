package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aryan-cs/hackaplan/internal/api"
	"github.com/aryan-cs/hackaplan/internal/config"
	"github.com/aryan-cs/hackaplan/internal/devpost"
	"github.com/aryan-cs/hackaplan/internal/lookup"
	"github.com/aryan-cs/hackaplan/internal/store/memory"
	"github.com/aryan-cs/hackaplan/internal/store/postgres"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the lookup HTTP service",
		Long: `Starts the HTTP API, the lookup worker, and the progress event
broadcast. Pending lookups persisted by a previous run are re-enqueued on
startup.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	client := devpost.NewClient(devpost.ClientConfig{
		Timeout:     cfg.FetchTimeout(),
		MaxRetries:  cfg.Fetch.MaxRetries,
		BackoffBase: cfg.FetchBackoff(),
		UserAgent:   cfg.Fetch.UserAgent,
	}, logger)
	scraper := devpost.NewScraper(client, devpost.ScraperConfig{
		ProjectTimeout:          cfg.ProjectTimeout(),
		ProjectMaxRetries:       cfg.Fetch.ProjectMaxRetries,
		ProjectBackoffBase:      cfg.ProjectBackoff(),
		ProjectFetchConcurrency: cfg.Fetch.ProjectConcurrency,
	}, logger)

	orch := lookup.New(store, scraper, lookup.Config{
		JobTimeout: cfg.JobTimeout(),
		ResultTTL:  cfg.ResultTTL(),
	}, logger)
	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}

	server := api.NewServer(store, orch, scraper, cfg, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := orch.Stop(shutdownCtx); err != nil {
		logger.Warn("orchestrator shutdown", zap.Error(err))
	}
	return nil
}

// buildStore selects Postgres when a DSN is configured, otherwise the
// in-memory store. The in-memory store loses state on restart; it exists for
// local development and tests.
func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (lookup.Store, func(), error) {
	if cfg.Database.DSN == "" {
		logger.Warn("no database.dsn configured; lookups are not durable across restarts")
		return memory.NewStore(), func() {}, nil
	}

	pg, err := postgres.NewStore(ctx, postgres.Config{
		DSN:      cfg.Database.DSN,
		MaxConns: int32(cfg.Database.MaxConns),
		MinConns: int32(cfg.Database.MinConns),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	return pg, pg.Close, nil
}
