package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for zapscraper.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zapscraper",
		Short: "Scraper for zapimoveis.com.br real-estate listings",
		Long: `zapscraper collects real-estate listings from zapimoveis.com.br.

It walks search-result pages, extracts listing cards, deep-scrapes
individual listing pages for full details, downloads listing photos,
and saves everything to a CSV file plus a SQLite history database.

By default zapscraper respects robots.txt and paces its requests with
randomized politeness delays.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewScrapeCmd())
	cmd.AddCommand(NewExportCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
