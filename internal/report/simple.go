package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"zapscraper/internal/model"
)

// durationPrecision keeps run durations readable in the summary.
const durationPrecision = 100 * time.Millisecond

// SimpleWriter outputs the human-readable run summary shown on the
// terminal when a scrape finishes.
//
// Design decision: Plain ASCII rather than ANSI colors. It renders the
// same everywhere and pipes cleanly into files and other tools.
type SimpleWriter struct {
	baseWriter

	// verbose adds the per-URL error list to the output.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables the per-URL error detail section.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given
// writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the run summary.
func (w *SimpleWriter) Write(report *model.ScrapeReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeStatistics(&sb, report)
	w.writeFindings(&sb, report)
	if w.verbose {
		w.writeErrors(&sb, report)
	}
	w.writeFooter(&sb, report)

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.ScrapeReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                         SCRAPE REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	mode := "search + deep"
	if report.DeepOnly {
		mode = "deep only"
	}
	sb.WriteString(fmt.Sprintf("Targets:   %d\n", len(report.TargetURLs)))
	for _, target := range report.TargetURLs {
		sb.WriteString(fmt.Sprintf("           %s\n", target))
	}
	sb.WriteString(fmt.Sprintf("Mode:      %s\n", mode))
	sb.WriteString(fmt.Sprintf("Started:   %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(fmt.Sprintf("Duration:  %s\n", report.Duration().Round(durationPrecision)))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeStatistics(sb *strings.Builder, report *model.ScrapeReport) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("FINAL STATISTICS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	stats := report.Snapshot()
	sb.WriteString(fmt.Sprintf("  Total:    %d\n", stats.Total))
	sb.WriteString(fmt.Sprintf("  Success:  %d\n", stats.Success))
	sb.WriteString(fmt.Sprintf("  Failed:   %d\n", stats.Failed))
	sb.WriteString(fmt.Sprintf("  Blocked:  %d\n", stats.Blocked))
	sb.WriteString(fmt.Sprintf("  Skipped:  %d\n", stats.Skipped))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  Listings: %d\n", len(report.Listings)))
	sb.WriteString(fmt.Sprintf("  Pages:    %d\n", report.PagesFetched))
	sb.WriteString(fmt.Sprintf("  Images:   %d\n", report.ImagesDownloaded))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFindings(sb *strings.Builder, report *model.ScrapeReport) {
	if len(report.Findings) == 0 {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("FINDINGS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	for _, finding := range report.Findings {
		sb.WriteString(fmt.Sprintf("  * %s\n", finding.Title))
		if finding.Value != "" {
			sb.WriteString(fmt.Sprintf("    Value: %s\n", finding.Value))
		}
		if finding.Location != "" {
			sb.WriteString(fmt.Sprintf("    Location: %s\n", finding.Location))
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeErrors(sb *strings.Builder, report *model.ScrapeReport) {
	if len(report.Errors) == 0 {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("ERRORS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	urls := make([]string, 0, len(report.Errors))
	for u := range report.Errors {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	for _, u := range urls {
		sb.WriteString(fmt.Sprintf("  %s\n    %s\n", u, report.Errors[u]))
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder, report *model.ScrapeReport) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	if report.OutputCSV != "" {
		sb.WriteString(fmt.Sprintf("Data saved to %s\n", report.OutputCSV))
		sb.WriteString(strings.Repeat("=", 70))
		sb.WriteString("\n")
	}
}
