package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"zapscraper/internal/config"
	"zapscraper/internal/log"
	"zapscraper/internal/storage"
)

// NewExportCmd creates the export command.
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored listings from the history database to CSV",
		Long: `Export dumps every listing stored in the SQLite history database
to a CSV file. Unlike the scrape artifact, which only holds the runs
executed in its directory, the history database accumulates listings
across all runs.

Examples:
  # Export to export.csv in the current directory
  zapscraper export

  # Export to a specific file
  zapscraper export -o backup/listings.csv`,
		RunE: runExportCmd,
	}

	cmd.Flags().StringP("output", "o", "export.csv",
		"Output CSV file path")
	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data directory)")

	return cmd
}

// runExportCmd executes the export command.
func runExportCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	db, err := storage.Open(dbDir, storage.Options{EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer db.Close()

	listings, err := db.ListListings(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read listings: %w", err)
	}
	if len(listings) == 0 {
		return fmt.Errorf("history database has no listings (run a scrape first)")
	}

	logger := log.NewSecureLogger(cmd.ErrOrStderr(), getVerboseFlag(cmd))
	store, err := storage.NewCSVStore(outputPath, logger)
	if err != nil {
		return fmt.Errorf("failed to open output CSV: %w", err)
	}
	if err := store.SaveBatch(listings); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d listing(s) to %s\n", len(listings), outputPath)
	return nil
}
