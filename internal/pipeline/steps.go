package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"zapscraper/internal/compliance"
	"zapscraper/internal/crawler"
	"zapscraper/internal/extract"
	"zapscraper/internal/model"
)

// PageStore persists the cards of one search results page.
type PageStore interface {
	SavePageListings(pageNum int, listings []*model.Listing) error
}

// ListingStore persists deep-scraped listings and knows which stored
// listings still need a detail visit.
type ListingStore interface {
	SaveListing(listing *model.Listing) error
	PendingDeepSearch() ([]*model.Listing, error)
}

// ImageDownloader downloads a listing's photos. Satisfied by
// *images.Downloader.
type ImageDownloader interface {
	DownloadListingImages(ctx context.Context, listing *model.Listing, report *model.ScrapeReport) (int, error)
}

// RunRecorder persists listings and run reports to the history
// database. Satisfied by *storage.CrawlDB.
type RunRecorder interface {
	UpsertListing(ctx context.Context, listing *model.Listing) error
	SaveRunReport(ctx context.Context, report *model.ScrapeReport) (int64, error)
}

// ComplianceStep filters the run's target URLs through the compliance
// gate before any scraping starts. Denied targets are recorded as
// skipped and removed from the target list.
type ComplianceStep struct {
	gate   *compliance.Gate
	logger *slog.Logger
}

// NewComplianceStep creates the compliance filter step.
func NewComplianceStep(gate *compliance.Gate, logger *slog.Logger) *ComplianceStep {
	return &ComplianceStep{gate: gate, logger: logger}
}

// Name returns the step name.
func (s *ComplianceStep) Name() string {
	return "compliance"
}

// Do checks every target URL against robots.txt and the public-data
// policy.
func (s *ComplianceStep) Do(ctx context.Context, report *model.ScrapeReport) error {
	allowed := make([]string, 0, len(report.TargetURLs))
	for _, target := range report.TargetURLs {
		ok, reason, err := s.gate.Allow(ctx, target)
		if err != nil {
			return err
		}
		if !ok {
			s.logger.Warn("target denied", "url", target, "reason", reason)
			report.RecordOutcome(target, model.OutcomeSkipped, reason)
			continue
		}
		allowed = append(allowed, target)
	}
	report.TargetURLs = allowed
	return nil
}

// SearchStep walks the search result pages of every target URL,
// extracting listing cards and persisting each page as it arrives.
// Target URLs that point directly at a listing skip pagination and go
// straight into the deep-scrape pool.
type SearchStep struct {
	fetcher   compliance.Fetcher
	gate      *compliance.Gate
	extractor *extract.SearchExtractor
	store     PageStore
	maxPages  int
	logger    *slog.Logger
}

// NewSearchStep creates the search pagination step. store may be nil
// when page results should only live in the report.
func NewSearchStep(fetcher compliance.Fetcher, gate *compliance.Gate, extractor *extract.SearchExtractor, store PageStore, maxPages int, logger *slog.Logger) *SearchStep {
	return &SearchStep{
		fetcher:   fetcher,
		gate:      gate,
		extractor: extractor,
		store:     store,
		maxPages:  maxPages,
		logger:    logger,
	}
}

// Name returns the step name.
func (s *SearchStep) Name() string {
	return "search"
}

// Do paginates each search target. A blocked or failed target is
// recorded in the report and does not abort the remaining targets.
func (s *SearchStep) Do(ctx context.Context, report *model.ScrapeReport) error {
	for _, target := range report.TargetURLs {
		if err := ctx.Err(); err != nil {
			return err
		}

		if model.IsListingURL(target) {
			// Direct listing URL: hand it to the deep scraper as-is.
			report.AddListing(&model.Listing{URL: target})
			continue
		}

		paginator := crawler.NewPaginator(s.fetcher, s.gate, s.extractor, s.maxPages, s.logger)
		total, err := paginator.Walk(ctx, target, func(ctx context.Context, pageNum int, listings []*model.Listing) error {
			report.CountPage()
			for _, listing := range listings {
				report.AddListing(listing)
			}
			if s.store != nil && len(listings) > 0 {
				return s.store.SavePageListings(pageNum, listings)
			}
			return nil
		})

		switch {
		case errors.Is(err, crawler.ErrBlocked):
			report.RecordOutcome(target, model.OutcomeBlocked, err.Error())
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return err
		case err != nil:
			report.RecordOutcome(target, model.OutcomeFailed, err.Error())
		default:
			s.logger.Info("search target complete", "url", target, "listings", total)
			report.RecordOutcome(target, model.OutcomeSuccess, "")
		}
	}
	return nil
}

// DeepScrapeStep visits the detail page of every listing that still
// needs deep data, merging and persisting the result immediately so a
// killed run loses at most the listing in flight.
type DeepScrapeStep struct {
	processor  *Processor
	store      ListingStore
	downloader ImageDownloader
	batch      *BatchProcessor
	logger     *slog.Logger
}

// NewDeepScrapeStep creates the deep-scrape step. downloader may be nil
// when image saving is disabled. concurrency bounds parallel detail
// fetches; deep-only runs should pass 1.
func NewDeepScrapeStep(processor *Processor, store ListingStore, downloader ImageDownloader, concurrency int, logger *slog.Logger) *DeepScrapeStep {
	return &DeepScrapeStep{
		processor:  processor,
		store:      store,
		downloader: downloader,
		batch:      NewBatchProcessor(WithBatchLogger(logger), WithConcurrency(concurrency)),
		logger:     logger,
	}
}

// Name returns the step name.
func (s *DeepScrapeStep) Name() string {
	return "deep_scrape"
}

// Do drains the deep-scrape pool. In deep-only mode the pool is read
// from storage; otherwise it is the listings collected this run.
func (s *DeepScrapeStep) Do(ctx context.Context, report *model.ScrapeReport) error {
	pending, err := s.pending(report)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		s.logger.Info("no listings need deep search")
		return nil
	}

	s.logger.Info("starting deep search", "pending", len(pending))

	return s.batch.ProcessListings(ctx, pending, func(ctx context.Context, listing *model.Listing) error {
		outcome, err := s.processor.ProcessListing(ctx, listing)

		errMsg := ""
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			errMsg = err.Error()
		}
		report.RecordOutcome(listing.URL, outcome, errMsg)

		if outcome != model.OutcomeSuccess {
			return nil
		}
		report.CountPage()

		if s.downloader != nil {
			if _, err := s.downloader.DownloadListingImages(ctx, listing, report); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				s.logger.Warn("image download failed", "url", listing.URL, "error", err)
			}
		}

		if err := s.store.SaveListing(listing); err != nil {
			return err
		}
		report.AddListing(listing)
		return nil
	})
}

// pending collects the listings that still need a detail visit, sorted
// by URL for a deterministic scrape order.
func (s *DeepScrapeStep) pending(report *model.ScrapeReport) ([]*model.Listing, error) {
	var candidates []*model.Listing
	if report.DeepOnly {
		stored, err := s.store.PendingDeepSearch()
		if err != nil {
			return nil, err
		}
		candidates = stored
	} else {
		candidates = report.ListingSlice()
	}

	pending := make([]*model.Listing, 0, len(candidates))
	for _, listing := range candidates {
		if listing.NeedsDeepSearch() {
			pending = append(pending, listing)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].URL < pending[j].URL })
	return pending, nil
}

// PersistReportStep finishes the report and writes it, along with every
// scraped listing, to the history database.
type PersistReportStep struct {
	recorder RunRecorder
	logger   *slog.Logger
}

// NewPersistReportStep creates the persistence step.
func NewPersistReportStep(recorder RunRecorder, logger *slog.Logger) *PersistReportStep {
	return &PersistReportStep{recorder: recorder, logger: logger}
}

// Name returns the step name.
func (s *PersistReportStep) Name() string {
	return "persist_report"
}

// Do stores the run in the history database.
func (s *PersistReportStep) Do(ctx context.Context, report *model.ScrapeReport) error {
	if report.FinishedAt.IsZero() {
		report.Finish()
	}

	for _, listing := range report.ListingSlice() {
		if err := s.recorder.UpsertListing(ctx, listing); err != nil {
			return err
		}
	}

	id, err := s.recorder.SaveRunReport(ctx, report)
	if err != nil {
		return err
	}
	s.logger.Info("run report saved", "run_id", id)
	return nil
}
