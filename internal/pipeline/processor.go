package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"zapscraper/internal/compliance"
	"zapscraper/internal/config"
	"zapscraper/internal/extract"
	"zapscraper/internal/model"
	"zapscraper/internal/proxy"
)

// ErrBlocked is returned when a detail page stays blocked through every
// retry attempt.
var ErrBlocked = errors.New("blocked by site")

// ScrapeClient fetches pages and can rotate its browser fingerprint
// after the site pushes back. Satisfied by *client.Client.
type ScrapeClient interface {
	Fetch(ctx context.Context, rawURL string) (*model.Page, error)
	RotateFingerprint()
}

// PageRecorder remembers successful detail-page fetches so a rerun
// within the freshness window does not hit the site again. Satisfied by
// *storage.CrawlDB.
type PageRecorder interface {
	RecordPage(ctx context.Context, page *model.Page) error
	HasRecentFetch(ctx context.Context, url string, within time.Duration) (bool, error)
}

// Processor scrapes one listing's detail page with retry, backoff, and
// anti-bot recovery. It is safe for concurrent use.
type Processor struct {
	client    ScrapeClient
	gate      *compliance.Gate
	extractor *extract.ListingExtractor
	logger    *slog.Logger

	maxRetries int
	retryDelay time.Duration
	backoff    float64

	// pool and proxyURL identify the proxy the client runs through so
	// blocks can be charged against it. Both empty for direct runs.
	pool     *proxy.Pool
	proxyURL string

	// recorder skips listings fetched within freshFor and records every
	// successfully scraped page. Nil disables the fetch cache.
	recorder PageRecorder
	freshFor time.Duration

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithProcessorProxy charges blocked responses against proxyURL in the
// pool, so repeatedly burned proxies cool down.
func WithProcessorProxy(pool *proxy.Pool, proxyURL string) ProcessorOption {
	return func(p *Processor) {
		p.pool = pool
		p.proxyURL = proxyURL
	}
}

// WithPageRecorder records successfully scraped detail pages and skips
// listings whose page was already fetched within freshFor. The record
// only exists once the extracted fields are merged, so a skip never
// loses data.
func WithPageRecorder(recorder PageRecorder, freshFor time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.recorder = recorder
		p.freshFor = freshFor
	}
}

// NewProcessor creates a processor using the retry settings from cfg.
func NewProcessor(client ScrapeClient, gate *compliance.Gate, extractor *extract.ListingExtractor, cfg *config.Config, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	p := &Processor{
		client:     client,
		gate:       gate,
		extractor:  extractor,
		logger:     logger,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		backoff:    cfg.RetryBackoff,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessListing fetches the listing's detail page and merges the deep
// fields into it. Transport errors and anti-bot blocks are retried with
// exponential backoff; a block also rotates the fingerprint and charges
// the proxy. Compliance denials are skips, not errors.
func (p *Processor) ProcessListing(ctx context.Context, listing *model.Listing) (model.Outcome, error) {
	allowed, reason, err := p.gate.Allow(ctx, listing.URL)
	if err != nil {
		return model.OutcomeFailed, err
	}
	if !allowed {
		p.logger.Info("skipping listing", "url", listing.URL, "reason", reason)
		return model.OutcomeSkipped, nil
	}

	if p.recorder != nil && p.freshFor > 0 {
		recent, err := p.recorder.HasRecentFetch(ctx, listing.URL, p.freshFor)
		if err != nil {
			p.logger.Warn("recent-fetch check failed", "url", listing.URL, "error", err)
		} else if recent {
			p.logger.Info("skipping listing", "url", listing.URL, "reason", "recently fetched")
			return model.OutcomeSkipped, nil
		}
	}

	var lastErr error
	blocked := false

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, p.retryAfter(attempt)); err != nil {
				return model.OutcomeFailed, err
			}
		}
		if err := p.gate.Wait(ctx, listing.URL); err != nil {
			return model.OutcomeFailed, err
		}

		page, err := p.client.Fetch(ctx, listing.URL)
		if err != nil {
			lastErr = err
			p.logger.Debug("detail fetch failed",
				"url", listing.URL,
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}

		if page.IsBlocked() {
			blocked = true
			lastErr = fmt.Errorf("HTTP %d: %w", page.StatusCode, ErrBlocked)
			p.handleBlock(page.StatusCode, listing.URL, attempt)
			continue
		}
		if page.StatusCode != 200 {
			// A hard status (404 gone, 500) won't improve with retries.
			return model.OutcomeFailed, fmt.Errorf("detail page returned HTTP %d", page.StatusCode)
		}

		deep, err := p.extractor.Extract(page)
		if err != nil {
			return model.OutcomeFailed, fmt.Errorf("extract detail page: %w", err)
		}

		updated, added := listing.Merge(deep)
		p.logger.Info("deep scraped listing",
			"url", listing.URL,
			"updated_fields", len(updated),
			"new_fields", len(added),
		)
		if p.recorder != nil {
			if err := p.recorder.RecordPage(ctx, page); err != nil {
				p.logger.Warn("failed to record page fetch", "url", listing.URL, "error", err)
			}
		}
		if p.pool != nil && p.proxyURL != "" {
			p.pool.MarkSuccess(p.proxyURL)
		}
		return model.OutcomeSuccess, nil
	}

	if blocked {
		return model.OutcomeBlocked, lastErr
	}
	return model.OutcomeFailed, lastErr
}

// handleBlock reacts to a 403/429: rotate the fingerprint and charge
// the proxy so the pool can cool it down.
func (p *Processor) handleBlock(statusCode int, url string, attempt int) {
	p.logger.Warn("blocked by site",
		"url", url,
		"status", statusCode,
		"attempt", attempt+1,
	)
	p.client.RotateFingerprint()
	if p.pool != nil && p.proxyURL != "" {
		p.pool.MarkFailure(p.proxyURL)
	}
}

// retryAfter computes the backoff delay before the given attempt.
func (p *Processor) retryAfter(attempt int) time.Duration {
	factor := math.Pow(p.backoff, float64(attempt-1))
	return time.Duration(float64(p.retryDelay) * factor)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
