package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"zapscraper/internal/config"
	"zapscraper/internal/extract"
	"zapscraper/internal/model"
)

// pageFetcher serves canned pages by URL; unknown URLs get a 404.
type pageFetcher struct {
	mu    sync.Mutex
	pages map[string]*model.Page
}

func (f *pageFetcher) Fetch(_ context.Context, rawURL string) (*model.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if page, ok := f.pages[rawURL]; ok {
		return page, nil
	}
	return &model.Page{URL: rawURL, StatusCode: 404}, nil
}

func (f *pageFetcher) RotateFingerprint() {}

// memoryStore is an in-memory ListingStore and PageStore.
type memoryStore struct {
	mu       sync.Mutex
	saved    map[string]*model.Listing
	pageSave int
	pending  []*model.Listing
	saveErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{saved: make(map[string]*model.Listing)}
}

func (s *memoryStore) SaveListing(listing *model.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved[listing.URL] = listing
	return nil
}

func (s *memoryStore) SavePageListings(_ int, listings []*model.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageSave++
	for _, l := range listings {
		s.saved[l.URL] = l
	}
	return nil
}

func (s *memoryStore) PendingDeepSearch() ([]*model.Listing, error) {
	return s.pending, nil
}

func searchHTML(startID, n int, nextHref string) []byte {
	html := "<html><body>"
	for i := 0; i < n; i++ {
		html += fmt.Sprintf(
			`<li data-cy="rp-property-cd"><a href="/imovel/casa-id-%d/"><h2 data-cy="rp-cardProperty-location-txt">Casa %d</h2></a></li>`,
			startID+i, startID+i)
	}
	if nextHref != "" {
		html += `<a rel="next" href="` + nextHref + `">next</a>`
	}
	html += "</body></html>"
	return []byte(html)
}

// TestComplianceStep tests target filtering.
func TestComplianceStep(t *testing.T) {
	t.Parallel()

	fetcher := &pageFetcher{pages: map[string]*model.Page{}}
	step := NewComplianceStep(openGate(fetcher), testLogger())

	report := model.NewScrapeReport([]string{
		"https://www.zapimoveis.com.br/venda/sp/",
		"https://www.zapimoveis.com.br/login/",
	})
	if err := step.Do(context.Background(), report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(report.TargetURLs) != 1 || report.TargetURLs[0] != "https://www.zapimoveis.com.br/venda/sp/" {
		t.Errorf("got targets %v", report.TargetURLs)
	}
	if report.Stats.Skipped != 1 {
		t.Errorf("got skipped %d, expected 1", report.Stats.Skipped)
	}
}

// TestSearchStep tests search pagination and per-page persistence.
func TestSearchStep(t *testing.T) {
	t.Parallel()

	t.Run("walks pages and persists each one", func(t *testing.T) {
		t.Parallel()

		base := "https://www.zapimoveis.com.br/venda/sp/"
		fetcher := &pageFetcher{pages: map[string]*model.Page{
			base: {URL: base, StatusCode: 200, Raw: searchHTML(1, 2, "/venda/sp/?pagina=2")},
			"https://www.zapimoveis.com.br/venda/sp/?pagina=2": {
				URL:        "https://www.zapimoveis.com.br/venda/sp/?pagina=2",
				StatusCode: 200,
				Raw:        searchHTML(3, 1, ""),
			},
		}}
		store := newMemoryStore()
		step := NewSearchStep(fetcher, openGate(fetcher), extract.NewSearchExtractor(extract.DefaultSelectors()), store, 10, testLogger())

		report := model.NewScrapeReport([]string{base})
		if err := step.Do(context.Background(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(report.Listings) != 3 {
			t.Errorf("got %d listings in report", len(report.Listings))
		}
		if store.pageSave != 2 {
			t.Errorf("got %d page saves, expected 2", store.pageSave)
		}
		if report.PagesFetched != 2 {
			t.Errorf("got %d pages fetched", report.PagesFetched)
		}
		if report.Stats.Success != 1 {
			t.Errorf("got stats %+v", report.Stats)
		}
	})

	t.Run("blocked target is recorded, not fatal", func(t *testing.T) {
		t.Parallel()

		blockedURL := "https://www.zapimoveis.com.br/venda/rj/"
		okURL := "https://www.zapimoveis.com.br/venda/sp/"
		fetcher := &pageFetcher{pages: map[string]*model.Page{
			blockedURL: {URL: blockedURL, StatusCode: 403},
			okURL:      {URL: okURL, StatusCode: 200, Raw: searchHTML(1, 1, "")},
		}}
		step := NewSearchStep(fetcher, openGate(fetcher), extract.NewSearchExtractor(extract.DefaultSelectors()), nil, 10, testLogger())

		report := model.NewScrapeReport([]string{blockedURL, okURL})
		if err := step.Do(context.Background(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Stats.Blocked != 1 || report.Stats.Success != 1 {
			t.Errorf("got stats %+v", report.Stats)
		}
	})

	t.Run("direct listing URL bypasses pagination", func(t *testing.T) {
		t.Parallel()

		listingURL := "https://www.zapimoveis.com.br/imovel/casa-id-9/"
		fetcher := &pageFetcher{pages: map[string]*model.Page{}}
		step := NewSearchStep(fetcher, openGate(fetcher), extract.NewSearchExtractor(extract.DefaultSelectors()), nil, 10, testLogger())

		report := model.NewScrapeReport([]string{listingURL})
		if err := step.Do(context.Background(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := report.Listings[listingURL]; !ok {
			t.Errorf("listing URL missing from report: %v", report.Listings)
		}
	})
}

// TestDeepScrapeStep tests the deep-scrape drain.
func TestDeepScrapeStep(t *testing.T) {
	t.Parallel()

	t.Run("scrapes and persists pending listings", func(t *testing.T) {
		t.Parallel()

		listingURL := "https://www.zapimoveis.com.br/imovel/apartamento-id-77/"
		client := &scriptedClient{pages: []*model.Page{
			{StatusCode: 200, Raw: []byte(detailHTML)},
		}}
		cfg := config.NewConfig()
		cfg.RetryDelay = time.Millisecond
		processor := NewProcessor(client, openGate(client), extract.NewListingExtractor(extract.DefaultSelectors()), cfg, testLogger())
		processor.sleep = func(context.Context, time.Duration) error { return nil }

		store := newMemoryStore()
		step := NewDeepScrapeStep(processor, store, nil, 1, testLogger())

		report := model.NewScrapeReport(nil)
		report.AddListing(&model.Listing{URL: listingURL, Title: "Apartamento"})

		if err := step.Do(context.Background(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		saved, ok := store.saved[listingURL]
		if !ok {
			t.Fatal("listing was not persisted")
		}
		if saved.FullAddress == "" {
			t.Error("deep fields missing on persisted listing")
		}
		if report.Stats.Success != 1 {
			t.Errorf("got stats %+v", report.Stats)
		}
	})

	t.Run("deep-only mode reads pending from storage", func(t *testing.T) {
		t.Parallel()

		listingURL := "https://www.zapimoveis.com.br/imovel/apartamento-id-88/"
		client := &scriptedClient{pages: []*model.Page{
			{StatusCode: 200, Raw: []byte(detailHTML)},
		}}
		cfg := config.NewConfig()
		processor := NewProcessor(client, openGate(client), extract.NewListingExtractor(extract.DefaultSelectors()), cfg, testLogger())
		processor.sleep = func(context.Context, time.Duration) error { return nil }

		store := newMemoryStore()
		store.pending = []*model.Listing{{URL: listingURL}}
		step := NewDeepScrapeStep(processor, store, nil, 1, testLogger())

		report := model.NewScrapeReport(nil)
		report.DeepOnly = true
		if err := step.Do(context.Background(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := store.saved[listingURL]; !ok {
			t.Error("pending listing was not scraped and persisted")
		}
	})

	t.Run("complete listings are not rescraped", func(t *testing.T) {
		t.Parallel()

		client := &scriptedClient{pages: []*model.Page{{StatusCode: 200, Raw: []byte(detailHTML)}}}
		cfg := config.NewConfig()
		processor := NewProcessor(client, openGate(client), extract.NewListingExtractor(extract.DefaultSelectors()), cfg, testLogger())

		store := newMemoryStore()
		step := NewDeepScrapeStep(processor, store, nil, 1, testLogger())

		report := model.NewScrapeReport(nil)
		report.AddListing(&model.Listing{
			URL:             "https://www.zapimoveis.com.br/imovel/casa-id-5/",
			FullAddress:     "Rua A, 1",
			FullDescription: "Completa.",
			AdvertiserName:  "Anunciante",
		})

		if err := step.Do(context.Background(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if client.calls != 0 {
			t.Errorf("complete listing was fetched %d times", client.calls)
		}
	})

	t.Run("store failure aborts the step", func(t *testing.T) {
		t.Parallel()

		client := &scriptedClient{pages: []*model.Page{{StatusCode: 200, Raw: []byte(detailHTML)}}}
		cfg := config.NewConfig()
		processor := NewProcessor(client, openGate(client), extract.NewListingExtractor(extract.DefaultSelectors()), cfg, testLogger())
		processor.sleep = func(context.Context, time.Duration) error { return nil }

		store := newMemoryStore()
		store.saveErr = errors.New("disk full")
		step := NewDeepScrapeStep(processor, store, nil, 1, testLogger())

		report := model.NewScrapeReport(nil)
		report.AddListing(&model.Listing{URL: "https://www.zapimoveis.com.br/imovel/casa-id-6/"})

		if err := step.Do(context.Background(), report); err == nil {
			t.Error("expected store error to abort the step")
		}
	})
}

// fakeRunRecorder is an in-memory RunRecorder.
type fakeRunRecorder struct {
	listings []*model.Listing
	reports  []*model.ScrapeReport
}

func (r *fakeRunRecorder) UpsertListing(_ context.Context, listing *model.Listing) error {
	r.listings = append(r.listings, listing)
	return nil
}

func (r *fakeRunRecorder) SaveRunReport(_ context.Context, report *model.ScrapeReport) (int64, error) {
	r.reports = append(r.reports, report)
	return int64(len(r.reports)), nil
}

// TestPersistReportStep tests history persistence.
func TestPersistReportStep(t *testing.T) {
	t.Parallel()

	recorder := &fakeRunRecorder{}
	step := NewPersistReportStep(recorder, testLogger())

	report := model.NewScrapeReport(nil)
	report.AddListing(&model.Listing{URL: "https://www.zapimoveis.com.br/imovel/casa-id-1/"})

	if err := step.Do(context.Background(), report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recorder.listings) != 1 || len(recorder.reports) != 1 {
		t.Errorf("got %d listings, %d reports", len(recorder.listings), len(recorder.reports))
	}
	if report.FinishedAt.IsZero() {
		t.Error("expected report to be finished")
	}
}
