package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"zapscraper/internal/config"
	"zapscraper/internal/model"
	"zapscraper/internal/report"
	"zapscraper/internal/storage"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [listing-url]",
		Short: "Show stored scrape runs or a stored listing",
		Long: `History inspects the SQLite history database.

Without arguments it lists recent scrape runs with their final
statistics. With a listing URL it prints the stored record for that
listing, including every field collected across runs. --run and --last
print the full stored report for one run.

Examples:
  # Show the last 10 runs
  zapscraper history

  # Show the last 50 runs
  zapscraper history -n 50

  # Show the full report for run 3
  zapscraper history --run 3

  # Show the full report for the most recent run
  zapscraper history --last

  # Show a stored listing
  zapscraper history https://www.zapimoveis.com.br/imovel/casa-id-123/`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", 10,
		"Maximum number of runs to show")
	cmd.Flags().Int64("run", 0,
		"Show the full stored report for the given run id")
	cmd.Flags().Bool("last", false,
		"Show the full stored report for the most recent run")
	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data directory)")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	limit, err := cmd.Flags().GetInt("limit")
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

	runID, err := cmd.Flags().GetInt64("run")
	if err != nil {
		return err
	}
	last, err := cmd.Flags().GetBool("last")
	if err != nil {
		return err
	}

	switch {
	case len(args) == 1:
		return showListing(cmd, db, args[0])
	case runID > 0:
		return showRunReport(cmd, db, runID)
	case last:
		return showRunReport(cmd, db, 0)
	default:
		return showRuns(cmd, db, limit)
	}
}

// showRunReport prints the full stored report for one run. id <= 0
// means the most recent run.
func showRunReport(cmd *cobra.Command, db *storage.CrawlDB, id int64) error {
	var (
		stored *model.ScrapeReport
		err    error
	)
	if id > 0 {
		stored, err = db.GetRunReport(cmd.Context(), id)
	} else {
		stored, err = db.LatestRunReport(cmd.Context())
	}
	if err != nil {
		return fmt.Errorf("failed to read run report: %w", err)
	}
	if stored == nil {
		if id > 0 {
			return fmt.Errorf("no stored report for run %d", id)
		}
		return fmt.Errorf("no scrape runs recorded yet")
	}

	_, err = report.NewSimpleWriter(cmd.OutOrStdout(), report.WithVerbose(true)).Write(stored)
	return err
}

// showRuns prints recent scrape runs, newest first.
func showRuns(cmd *cobra.Command, db *storage.CrawlDB, limit int) error {
	runs, err := db.RunHistory(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("failed to read run history: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No scrape runs recorded yet.")
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-6s %-20s %-12s %-8s %-8s %-8s %-8s\n",
		"RUN", "STARTED", "MODE", "TOTAL", "SUCCESS", "FAILED", "BLOCKED")
	for _, run := range runs {
		mode := "search"
		if run.DeepOnly {
			mode = "deep-only"
		}
		fmt.Fprintf(out, "%-6d %-20s %-12s %-8d %-8d %-8d %-8d\n",
			run.ID,
			run.StartedAt.Format("2006-01-02 15:04:05"),
			mode,
			run.Stats.Total,
			run.Stats.Success,
			run.Stats.Failed,
			run.Stats.Blocked,
		)
	}
	return nil
}

// showListing prints the stored record for one listing URL.
func showListing(cmd *cobra.Command, db *storage.CrawlDB, rawURL string) error {
	listing, err := db.GetListing(cmd.Context(), rawURL)
	if err != nil {
		return fmt.Errorf("failed to read listing: %w", err)
	}
	if listing == nil {
		return fmt.Errorf("no stored listing for %s", rawURL)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Listing: %s\n\n", listing.URL)
	printFields(out, listing)
	return nil
}

// printFields writes the listing's non-empty fields in canonical order,
// unknown extras last.
func printFields(out io.Writer, listing *model.Listing) {
	fields := listing.Fields()

	canonical := make(map[string]bool, len(model.FieldNames))
	for _, name := range model.FieldNames {
		canonical[name] = true
		if name == "url" {
			continue
		}
		if v := fields[name]; !model.IsEmptyValue(v) {
			fmt.Fprintf(out, "  %-22s %s\n", name+":", v)
		}
	}

	var extras []string
	for name, v := range fields {
		if !canonical[name] && !model.IsEmptyValue(v) {
			extras = append(extras, name)
		}
	}
	sort.Strings(extras)
	for _, name := range extras {
		fmt.Fprintf(out, "  %-22s %s\n", name+":", fields[name])
	}
}
