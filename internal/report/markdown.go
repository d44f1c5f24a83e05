package report

import (
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"zapscraper/internal/model"
)

// MarkdownWriter outputs reports in Markdown format, for documentation
// and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent,
// type-safe markdown generation with tables and mermaid charts.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given
// writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.ScrapeReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeStatistics(md, report)
	w.writeListings(md, report)
	w.writeFindings(md, report)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.ScrapeReport) {
	md.H1("Scrape Report")
	md.PlainText("")

	mode := "search + deep"
	if report.DeepOnly {
		mode = "deep only"
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Targets", "`" + strings.Join(report.TargetURLs, "`, `") + "`"},
			{"Mode", mode},
			{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", report.Duration().Round(durationPrecision).String()},
			{"Output", "`" + report.OutputCSV + "`"},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeStatistics(md *markdown.Markdown, report *model.ScrapeReport) {
	md.H2("Final Statistics")
	md.PlainText("")

	stats := report.Snapshot()
	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows: [][]string{
			{"Success", strconv.Itoa(stats.Success)},
			{"Failed", strconv.Itoa(stats.Failed)},
			{"Blocked", strconv.Itoa(stats.Blocked)},
			{"Skipped", strconv.Itoa(stats.Skipped)},
			{"**Total**", "**" + strconv.Itoa(stats.Total) + "**"},
		},
	})
	md.PlainText("")

	if stats.Total > 0 {
		w.writePieChart(md, stats)
	}
}

// writePieChart writes a mermaid pie chart of the outcome distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, stats model.Stats) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Outcome Distribution"),
		piechart.WithShowData(true),
	)

	if stats.Success > 0 {
		chart.LabelAndIntValue("Success", uint64(stats.Success))
	}
	if stats.Failed > 0 {
		chart.LabelAndIntValue("Failed", uint64(stats.Failed))
	}
	if stats.Blocked > 0 {
		chart.LabelAndIntValue("Blocked", uint64(stats.Blocked))
	}
	if stats.Skipped > 0 {
		chart.LabelAndIntValue("Skipped", uint64(stats.Skipped))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeListings(md *markdown.Markdown, report *model.ScrapeReport) {
	md.H2("Listings")
	md.PlainText("")

	listings := report.ListingSlice()
	sort.Slice(listings, func(i, j int) bool { return listings[i].URL < listings[j].URL })
	if len(listings) == 0 {
		md.PlainText("No listings scraped.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(listings))
	for _, l := range listings {
		rows = append(rows, []string{
			"[" + firstNonEmpty(l.Title, l.URL) + "](" + l.URL + ")",
			l.Price,
			l.Location,
			strconv.Itoa(len(l.Images)),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Listing", "Price", "Location", "Photos"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFindings(md *markdown.Markdown, report *model.ScrapeReport) {
	if len(report.Findings) == 0 {
		return
	}

	md.H2("Findings")
	md.PlainText("")

	rows := make([][]string, 0, len(report.Findings))
	for _, f := range report.Findings {
		rows = append(rows, []string{f.Type, f.Title, f.Value, f.Location})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Type", "Title", "Value", "Location"},
		Rows:   rows,
	})
	md.PlainText("")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
