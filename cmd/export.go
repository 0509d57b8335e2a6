package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aryan-cs/hackaplan/internal/devpost"
	"github.com/aryan-cs/hackaplan/internal/snapshot"
)

func newExportCmd() *cobra.Command {
	var (
		targets     []string
		limit       int
		maxPages    int
		concurrency int
		output      string
		prune       bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export static JSON snapshots of hackathon winners",
		Long: `Crawls a set of hackathons and writes one JSON shard per hackathon plus
a manifest. Targets come from --target flags, or from the Devpost listing of
ended hackathons when no targets are given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

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

			builder := snapshot.NewBuilder(scraper, client, snapshot.Config{
				OutputDir:   output,
				Concurrency: concurrency,
				Prune:       prune,
			}, logger)

			if len(targets) == 0 {
				targets, err = builder.DiscoverTargets(ctx, limit, maxPages)
				if err != nil {
					return fmt.Errorf("discover targets: %w", err)
				}
			}
			if len(targets) == 0 {
				return fmt.Errorf("no hackathons to export")
			}

			report, err := builder.Build(ctx, targets)
			if err != nil {
				return fmt.Errorf("build snapshot: %w", err)
			}
			logger.Info("export finished",
				zap.Int("total", report.Total),
				zap.Int("succeeded", report.Succeeded),
				zap.Int("failed", report.Failed),
				zap.Int("pruned", report.Pruned),
				zap.Duration("duration", report.Duration),
			)
			if report.Succeeded == 0 {
				return fmt.Errorf("every crawl failed (%d targets)", report.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&targets, "target", nil, "hackathon URL to export (repeatable; skips discovery)")
	cmd.Flags().IntVar(&limit, "limit", 25, "maximum hackathons to discover")
	cmd.Flags().IntVar(&maxPages, "max-pages", 10, "maximum listing pages to walk during discovery")
	cmd.Flags().IntVar(&concurrency, "concurrency", 2, "concurrent crawls")
	cmd.Flags().StringVar(&output, "output", "data/snapshot", "output directory")
	cmd.Flags().BoolVar(&prune, "prune", false, "remove shards for hackathons not in this run")
	return cmd
}
