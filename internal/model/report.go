package model

import (
	"sync"
	"time"
)

// Outcome classifies the result of processing a single URL.
type Outcome string

// Possible outcomes of processing one target URL.
const (
	// OutcomeSuccess means data was extracted and persisted.
	OutcomeSuccess Outcome = "success"

	// OutcomeFailed means processing gave up after exhausting retries.
	OutcomeFailed Outcome = "failed"

	// OutcomeBlocked means the site answered 403 or 429 and retries
	// did not recover.
	OutcomeBlocked Outcome = "blocked"

	// OutcomeSkipped means compliance checks denied the URL before any
	// request was made.
	OutcomeSkipped Outcome = "skipped"
)

// Stats accumulates per-run counters. They are the final statistics the
// CLI prints when a run completes.
type Stats struct {
	// Total is the number of target URLs processed.
	Total int `json:"total"`

	// Success counts URLs that produced persisted data.
	Success int `json:"success"`

	// Failed counts URLs that errored after all retries.
	Failed int `json:"failed"`

	// Blocked counts URLs rejected by the site's anti-bot layer.
	Blocked int `json:"blocked"`

	// Skipped counts URLs denied by compliance checks.
	Skipped int `json:"skipped"`
}

// Record increments the counter matching the outcome, plus the total.
func (s *Stats) Record(o Outcome) {
	s.Total++
	switch o {
	case OutcomeSuccess:
		s.Success++
	case OutcomeFailed:
		s.Failed++
	case OutcomeBlocked:
		s.Blocked++
	case OutcomeSkipped:
		s.Skipped++
	}
}

// ScrapeReport is the accumulated result of one scrape run.
// Pipeline steps write into it; report writers and the crawl database
// read from it when the run finishes.
//
// Design decision: A single mutex guards all mutable state instead of
// per-field locks because steps touch several fields per event and the
// write rate is bounded by network latency, not lock contention.
type ScrapeReport struct {
	mu sync.Mutex

	// TargetURLs are the URLs this run was asked to process.
	TargetURLs []string `json:"target_urls"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the run completed. Zero while running.
	FinishedAt time.Time `json:"finished_at,omitempty"`

	// DeepOnly is true when the run processed only pending listings
	// from the existing CSV, skipping search pages.
	DeepOnly bool `json:"deep_only"`

	// Stats holds the per-run counters.
	Stats Stats `json:"stats"`

	// PagesFetched is the number of HTTP pages fetched, including
	// search pages and detail pages but not images.
	PagesFetched int `json:"pages_fetched"`

	// ImagesDownloaded is the number of listing images saved to disk.
	ImagesDownloaded int `json:"images_downloaded"`

	// Listings holds the listings collected during this run, keyed
	// by URL.
	Listings map[string]*Listing `json:"-"` // Persisted via storage, not the report

	// Findings contains notable observations from the run, such as
	// EXIF metadata discovered in downloaded images.
	Findings []Finding `json:"findings,omitempty"`

	// Errors holds per-URL error messages for failed targets.
	Errors map[string]string `json:"errors,omitempty"`

	// OutputCSV is the path of the CSV artifact the run wrote.
	OutputCSV string `json:"output_csv,omitempty"`
}

// Finding is a notable observation surfaced in the run report.
type Finding struct {
	// Type is a stable identifier, e.g. "exif_gps" or "exif_camera".
	Type string `json:"type"`

	// Title is a short human-readable description.
	Title string `json:"title"`

	// Value is the specific value observed.
	Value string `json:"value,omitempty"`

	// Location is where the finding was observed, typically a file
	// path or URL.
	Location string `json:"location,omitempty"`
}

// NewScrapeReport creates a report for a run over the given target URLs.
func NewScrapeReport(targetURLs []string) *ScrapeReport {
	return &ScrapeReport{
		TargetURLs: targetURLs,
		StartedAt:  time.Now(),
		Listings:   make(map[string]*Listing),
		Errors:     make(map[string]string),
	}
}

// RecordOutcome records the outcome of one target URL. An optional error
// message is stored for failed and blocked targets.
func (r *ScrapeReport) RecordOutcome(url string, o Outcome, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Stats.Record(o)
	if errMsg != "" {
		r.Errors[url] = errMsg
	}
}

// AddListing merges a listing into the report, keyed by URL.
// If a listing with the same URL already exists, the incoming non-empty
// fields win per the listing merge rules.
func (r *ScrapeReport) AddListing(l *Listing) {
	if l == nil || l.URL == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.Listings[l.URL]; ok {
		existing.Merge(l)
		return
	}
	r.Listings[l.URL] = l
}

// AddFinding appends a finding, ignoring exact duplicates.
func (r *ScrapeReport) AddFinding(f Finding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.Findings {
		if existing.Type == f.Type && existing.Value == f.Value && existing.Location == f.Location {
			return
		}
	}
	r.Findings = append(r.Findings, f)
}

// CountPage increments the fetched-page counter.
func (r *ScrapeReport) CountPage() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.PagesFetched++
}

// CountImage increments the downloaded-image counter.
func (r *ScrapeReport) CountImage() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ImagesDownloaded++
}

// Finish stamps the completion time.
func (r *ScrapeReport) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = time.Now()
}

// Duration returns the elapsed run time. While the run is still in
// progress it measures up to now.
func (r *ScrapeReport) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Snapshot returns a copy of the counters safe to read while steps are
// still writing.
func (r *ScrapeReport) Snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Stats
}

// ListingSlice returns the collected listings. Order is not guaranteed;
// callers that need ordering sort by URL.
func (r *ScrapeReport) ListingSlice() []*Listing {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Listing, 0, len(r.Listings))
	for _, l := range r.Listings {
		out = append(out, l)
	}
	return out
}
