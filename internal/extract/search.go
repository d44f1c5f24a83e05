package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"

	"zapscraper/internal/model"
)

// SearchExtractor reads listing cards from a search results page.
type SearchExtractor struct {
	selectors SelectorSet
}

// NewSearchExtractor creates a search-page extractor with the given
// selectors.
func NewSearchExtractor(selectors SelectorSet) *SearchExtractor {
	return &SearchExtractor{selectors: selectors}
}

// SearchResult is the outcome of extracting one search results page.
type SearchResult struct {
	// Listings holds the cards found on the page.
	Listings []*model.Listing

	// NextPageURL is the absolute URL of the following results page,
	// empty on the last page.
	NextPageURL string
}

// Extract parses the page and returns its listing cards. Cards without a
// resolvable listing URL are dropped: a card we cannot key by URL cannot
// be merged or deep-scraped later.
func (e *SearchExtractor) Extract(page *model.Page) (*SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Raw))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	base, err := url.Parse(page.URL)
	if err != nil {
		return nil, fmt.Errorf("parse page URL: %w", err)
	}

	result := &SearchResult{}
	now := time.Now()

	doc.Find(e.selectors.Card).Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Find(e.selectors.CardLink).First().Attr("href")
		if !ok {
			// Some markups wrap the card itself in the anchor.
			href, ok = card.Closest("a").Attr("href")
		}
		if !ok {
			return
		}
		listingURL := resolveURL(base, href)
		if !model.IsListingURL(listingURL) {
			return
		}

		result.Listings = append(result.Listings, &model.Listing{
			URL:       listingURL,
			Title:     CleanText(card.Find(e.selectors.Title).First().Text()),
			Price:     CleanText(card.Find(e.selectors.Price).First().Text()),
			Location:  CleanText(card.Find(e.selectors.Location).First().Text()),
			Area:      CleanText(card.Find(e.selectors.Area).First().Text()),
			Bedrooms:  CleanText(card.Find(e.selectors.Bedrooms).First().Text()),
			Bathrooms: CleanText(card.Find(e.selectors.Bathrooms).First().Text()),
			ScrapedAt: now,
		})
	})

	result.NextPageURL = e.nextPageURL(doc, base)
	return result, nil
}

// nextPageURL finds the following results page. It prefers an explicit
// next link and falls back to incrementing the pagina query parameter,
// which the portal uses for pagination.
func (e *SearchExtractor) nextPageURL(doc *goquery.Document, base *url.URL) string {
	if href, ok := doc.Find(e.selectors.NextPage).First().Attr("href"); ok && href != "" {
		return resolveURL(base, href)
	}

	// Parameter fallback: only applies when the page advertises more
	// results via a pagination container.
	if doc.Find("[data-cy='pagination'], nav.pagination").Length() == 0 {
		return ""
	}
	q := base.Query()
	current := 1
	if v := q.Get("pagina"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			current = n
		}
	}
	q.Set("pagina", strconv.Itoa(current+1))
	next := *base
	next.RawQuery = q.Encode()
	return next.String()
}

// resolveURL makes href absolute against base.
func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
