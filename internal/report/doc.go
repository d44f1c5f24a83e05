// Package report renders finished scrape runs. SimpleWriter prints the
// terminal summary shown at the end of a run; JSONWriter and
// MarkdownWriter produce machine-readable and shareable artifacts.
package report
