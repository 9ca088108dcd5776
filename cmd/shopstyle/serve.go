package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/shopstyle/internal/config"
	"github.com/JakeFAU/shopstyle/internal/server"
)

// runServer is swapped in tests.
var runServer = func(ctx context.Context, cfg *config.Config) error {
	app, err := server.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	return app.Run(ctx)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP scraping service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}
}
