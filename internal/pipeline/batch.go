package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"zapscraper/internal/model"
)

// ListingFunc processes one listing. Returning an error aborts the
// whole batch; per-listing failures belong in the report instead.
type ListingFunc func(ctx context.Context, listing *model.Listing) error

// BatchProcessor runs a ListingFunc over many listings with bounded
// concurrency.
//
// Design decision: errgroup.SetLimit instead of a hand-rolled worker
// pool. Each listing gets its own goroutine but only `concurrency` run
// at once, and the first aborting error cancels the rest.
type BatchProcessor struct {
	concurrency int
	logger      *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent workers.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a BatchProcessor. Default concurrency is 3.
func NewBatchProcessor(opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{concurrency: 3}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// Concurrency returns the configured worker limit.
func (bp *BatchProcessor) Concurrency() int {
	return bp.concurrency
}

// ProcessListings runs fn over every listing, at most `concurrency` at
// a time. It returns the first aborting error, or nil when the batch
// drained.
func (bp *BatchProcessor) ProcessListings(ctx context.Context, listings []*model.Listing, fn ListingFunc) error {
	bp.logger.Info("starting batch",
		"listings", len(listings),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, listing := range listings {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Debug("processing listing",
				"url", listing.URL,
				"index", i+1,
				"total", len(listings),
			)
			return fn(ctx, listing)
		})
	}

	err := g.Wait()
	bp.logger.Info("batch complete",
		"listings", len(listings),
		"elapsed", time.Since(startTime),
	)
	return err
}
