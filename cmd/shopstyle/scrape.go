package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/shopstyle/internal/api"
	"github.com/JakeFAU/shopstyle/internal/config"
	"github.com/JakeFAU/shopstyle/internal/logging"
	"github.com/JakeFAU/shopstyle/internal/server"
)

// newScraper is swapped in tests.
var newScraper = func(cfg *config.Config, logger *zap.Logger) (api.Scraper, error) {
	return server.NewScraper(cfg, logger)
}

func newScrapeCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "scrape <url>",
		Short: "Scrapes one page and prints the JSON result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush

			s, err := newScraper(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			result, err := s.Scrape(ctx, args[0])
			if err != nil {
				return fmt.Errorf("scrape %s: %w", args[0], err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall scrape deadline (0 disables)")
	return cmd
}
