package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"zapscraper/internal/model"
)

func batchListings(n int) []*model.Listing {
	listings := make([]*model.Listing, n)
	for i := range listings {
		listings[i] = &model.Listing{
			URL: fmt.Sprintf("https://www.zapimoveis.com.br/imovel/casa-id-%d/", i+1),
		}
	}
	return listings
}

// TestBatchProcessorProcessListings tests concurrent listing processing.
func TestBatchProcessorProcessListings(t *testing.T) {
	t.Parallel()

	t.Run("processes every listing", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(WithBatchLogger(testLogger()), WithConcurrency(3))

		var mu sync.Mutex
		seen := make(map[string]bool)
		err := bp.ProcessListings(context.Background(), batchListings(10), func(_ context.Context, l *model.Listing) error {
			mu.Lock()
			seen[l.URL] = true
			mu.Unlock()
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(seen) != 10 {
			t.Errorf("processed %d listings, expected 10", len(seen))
		}
	})

	t.Run("respects the concurrency limit", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(WithBatchLogger(testLogger()), WithConcurrency(2))

		var current, peak int64
		err := bp.ProcessListings(context.Background(), batchListings(8), func(context.Context, *model.Listing) error {
			n := atomic.AddInt64(&current, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&current, -1)
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := atomic.LoadInt64(&peak); got > 2 {
			t.Errorf("observed %d concurrent workers, limit is 2", got)
		}
	})

	t.Run("aborting error cancels the batch", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(WithBatchLogger(testLogger()), WithConcurrency(1))

		wantErr := errors.New("storage gone")
		var calls int64
		err := bp.ProcessListings(context.Background(), batchListings(5), func(context.Context, *model.Listing) error {
			if atomic.AddInt64(&calls, 1) == 1 {
				return wantErr
			}
			return nil
		})
		if !errors.Is(err, wantErr) {
			t.Fatalf("got %v, expected the aborting error", err)
		}
		if got := atomic.LoadInt64(&calls); got == 5 {
			t.Error("batch was not cancelled after the error")
		}
	})

	t.Run("default concurrency", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(WithBatchLogger(testLogger()))
		if bp.Concurrency() != 3 {
			t.Errorf("got %d, expected 3", bp.Concurrency())
		}
	})
}
