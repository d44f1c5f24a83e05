// Package storage persists scraped listings. CSVStore owns the
// scraped_data.csv artifact that deep search reads back and enriches;
// CrawlDB keeps a SQLite history of pages, listings and runs for the
// history and export commands.
package storage
