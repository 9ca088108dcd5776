package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/shopstyle/internal/config"
)

// cfgKeyType is the key for storing the loaded Config in the command context.
type cfgKeyType string

const cfgKey cfgKeyType = "config"

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "shopstyle",
		Short: "Extracts fonts and add-to-cart button styles from product pages.",
		Long: `shopstyle renders e-commerce product pages in a headless browser and
reports the fonts in use together with the computed style of the primary
add-to-cart button.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Load configuration once for every subcommand.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), cfgKey, &cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newScrapeCmd())

	return cmd
}

func resolveConfig(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(cfgKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
