// Package pipeline orchestrates a scrape run as a sequence of steps.
//
// A run flows through compliance filtering, search pagination, deep
// scraping of detail pages, and report persistence. Each stage is a
// Step that receives the shared run report and can modify it.
//
// Design decision: Steps operate on one shared, mutex-guarded report
// rather than per-target reports because the CSV artifact and the run
// statistics are run-wide: search targets feed listings into the same
// pool the deep scraper drains, and concurrent deep workers record
// outcomes into the same counters.
package pipeline
