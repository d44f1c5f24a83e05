package report

import (
	"encoding/json"
	"io"

	"zapscraper/internal/model"
)

// JSONWriter outputs reports in JSON format for tool integration.
//
// Design decision: We use standard encoding/json rather than a
// third-party JSON library because it is sufficient for report-sized
// payloads and behaves consistently across Go versions.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentString = "  "
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report in JSON format.
func (w *JSONWriter) Write(report *model.ScrapeReport) (int, error) {
	return w.writeJSON(jsonReport{
		ScrapeReport: report,
		Listings:     report.ListingSlice(),
	})
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}
	// Trailing newline for terminal output.
	data = append(data, '\n')
	return w.output.Write(data)
}

// jsonReport wraps the report with the listing slice, which the core
// type keeps out of its own JSON because listings are persisted by the
// storage layer.
type jsonReport struct {
	*model.ScrapeReport
	Listings []*model.Listing `json:"listings,omitempty"`
}
