// Package main provides the entry point for the zapscraper CLI.
//
// zapscraper collects real-estate listings from zapimoveis.com.br.
// It walks search-result pages, deep-scrapes individual listings,
// downloads photos, and persists everything to a CSV file and a
// SQLite history database.
//
// Usage:
//
//	zapscraper scrape [url...]
//	zapscraper scrape --deep-only
//
// See --help for all available options.
package main

// main is the entry point for zapscraper.
func main() {
	Execute()
}
