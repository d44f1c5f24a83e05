// Package model defines the core data structures shared across zapscraper:
// listings, fetched pages, and per-run scrape reports.
//
// The model package has no dependencies on other internal packages so that
// it can be imported from anywhere without creating import cycles.
package model
