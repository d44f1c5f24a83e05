package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"zapscraper/internal/compliance"
	"zapscraper/internal/extract"
	"zapscraper/internal/model"
)

// ErrBlocked is returned when a search page answers with an anti-bot
// status (403 or 429).
var ErrBlocked = errors.New("blocked by site")

// PageCallback receives the listings of one search results page as soon
// as the page is extracted. Returning an error aborts the walk.
type PageCallback func(ctx context.Context, pageNum int, listings []*model.Listing) error

// Paginator walks search result pages sequentially.
//
// Design decision: Pagination is sequential on purpose. Page N+1's URL
// comes from page N, and fetching result pages in parallel would defeat
// the per-host politeness delay anyway.
type Paginator struct {
	fetcher   compliance.Fetcher
	gate      *compliance.Gate
	extractor *extract.SearchExtractor
	maxPages  int
	logger    *slog.Logger

	visited map[string]bool
}

// NewPaginator creates a paginator. maxPages caps the walk; values below
// one mean a single page.
func NewPaginator(fetcher compliance.Fetcher, gate *compliance.Gate, extractor *extract.SearchExtractor, maxPages int, logger *slog.Logger) *Paginator {
	if maxPages < 1 {
		maxPages = 1
	}
	return &Paginator{
		fetcher:   fetcher,
		gate:      gate,
		extractor: extractor,
		maxPages:  maxPages,
		logger:    logger,
		visited:   make(map[string]bool),
	}
}

// Walk fetches searchURL and follows next-page links until the last
// page, the maxPages cap, a repeated URL, or an error. Each page's
// listings go to callback before the next page is fetched. Returns the
// total number of listings seen.
func (p *Paginator) Walk(ctx context.Context, searchURL string, callback PageCallback) (int, error) {
	total := 0
	current := searchURL

	for pageNum := 1; pageNum <= p.maxPages && current != ""; pageNum++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		if p.visited[current] {
			p.logger.Debug("pagination loop detected, stopping", "url", current)
			break
		}
		p.visited[current] = true

		if err := p.gate.Wait(ctx, current); err != nil {
			return total, err
		}

		page, err := p.fetcher.Fetch(ctx, current)
		if err != nil {
			return total, fmt.Errorf("fetch search page %d: %w", pageNum, err)
		}
		if page.IsBlocked() {
			return total, fmt.Errorf("search page %d (%s): %w", pageNum, current, ErrBlocked)
		}
		if page.StatusCode != 200 {
			return total, fmt.Errorf("search page %d returned HTTP %d", pageNum, page.StatusCode)
		}

		result, err := p.extractor.Extract(page)
		if err != nil {
			return total, err
		}

		p.logger.Info("extracted search page",
			"page", pageNum,
			"listings", len(result.Listings),
			"url", current,
		)

		if len(result.Listings) == 0 {
			// An empty page past the first usually means we walked off
			// the end of the result set.
			if pageNum > 1 {
				break
			}
		}

		if err := callback(ctx, pageNum, result.Listings); err != nil {
			return total, err
		}
		total += len(result.Listings)
		current = result.NextPageURL
	}

	return total, nil
}
