// Package extract parses listing data out of portal HTML.
//
// SearchExtractor reads listing cards from search-result pages and finds
// the next pagination link. ListingExtractor reads the full detail page,
// including the image carousel and the JSON-LD structured data block the
// portal embeds for search engines, which survives front-end redesigns
// better than CSS selectors do.
package extract
