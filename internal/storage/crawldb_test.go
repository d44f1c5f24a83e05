package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"zapscraper/internal/model"
)

func newTestDB(t *testing.T) *CrawlDB {
	t.Helper()
	cdb, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() {
		if err := cdb.Close(); err != nil {
			t.Errorf("close database: %v", err)
		}
	})
	return cdb
}

// TestOpen tests database creation behavior.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates the database", func(t *testing.T) {
		t.Parallel()
		newTestDB(t)
	})

	t.Run("missing database without create option fails", func(t *testing.T) {
		t.Parallel()

		_, err := Open(t.TempDir(), Options{CreateIfNotExists: false})
		if !errors.Is(err, ErrDatabaseNotFound) {
			t.Errorf("got %v, expected ErrDatabaseNotFound", err)
		}
	})
}

// TestCrawlDBListings tests listing upsert and retrieval.
func TestCrawlDBListings(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		cdb := newTestDB(t)
		ctx := context.Background()
		listing := &model.Listing{
			URL:       "https://www.zapimoveis.com.br/imovel/casa-id-1/",
			Title:     "Casa no Centro",
			Price:     "R$ 500.000",
			Location:  "Centro, Curitiba",
			Images:    []string{"https://resizedimgs.zapimoveis.com.br/a.jpg"},
			ScrapedAt: time.Now().UTC().Truncate(time.Second),
		}
		if err := cdb.UpsertListing(ctx, listing); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := cdb.GetListing(ctx, listing.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got == nil {
			t.Fatal("expected listing, got nil")
		}
		if got.Title != listing.Title || got.Price != listing.Price {
			t.Errorf("got title=%q price=%q", got.Title, got.Price)
		}
		if len(got.Images) != 1 {
			t.Errorf("got images %v", got.Images)
		}
	})

	t.Run("upsert replaces stored fields", func(t *testing.T) {
		t.Parallel()

		cdb := newTestDB(t)
		ctx := context.Background()
		url := "https://www.zapimoveis.com.br/imovel/casa-id-2/"
		if err := cdb.UpsertListing(ctx, &model.Listing{URL: url, Title: "Antiga"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := cdb.UpsertListing(ctx, &model.Listing{URL: url, Title: "Atualizada"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := cdb.GetListing(ctx, url)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Title != "Atualizada" {
			t.Errorf("got title %q", got.Title)
		}

		all, err := cdb.ListListings(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(all) != 1 {
			t.Errorf("expected 1 listing, got %d", len(all))
		}
	})

	t.Run("unknown URL returns nil", func(t *testing.T) {
		t.Parallel()

		cdb := newTestDB(t)
		got, err := cdb.GetListing(context.Background(), "https://www.zapimoveis.com.br/imovel/nao-existe/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
	})

	t.Run("listing without URL is rejected", func(t *testing.T) {
		t.Parallel()

		cdb := newTestDB(t)
		if err := cdb.UpsertListing(context.Background(), &model.Listing{Title: "órfã"}); !errors.Is(err, ErrMissingURL) {
			t.Errorf("got %v, expected ErrMissingURL", err)
		}
	})
}

// TestCrawlDBPages tests page records and the recent-fetch check.
func TestCrawlDBPages(t *testing.T) {
	t.Parallel()

	cdb := newTestDB(t)
	ctx := context.Background()
	page := &model.Page{
		URL:         "https://www.zapimoveis.com.br/venda/sp/",
		StatusCode:  200,
		ContentType: "text/html",
		Title:       "Imóveis à venda",
		Hash:        "abc123",
	}
	if err := cdb.RecordPage(ctx, page); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Upsert on the same URL must not error.
	if err := cdb.RecordPage(ctx, page); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	recent, err := cdb.HasRecentFetch(ctx, page.URL, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !recent {
		t.Error("expected fetch to be recent")
	}

	recent, err = cdb.HasRecentFetch(ctx, "https://www.zapimoveis.com.br/venda/rj/", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recent {
		t.Error("expected unknown URL to not be recent")
	}
}

// TestCrawlDBRuns tests run report persistence and history.
func TestCrawlDBRuns(t *testing.T) {
	t.Parallel()

	cdb := newTestDB(t)
	ctx := context.Background()

	first := model.NewScrapeReport([]string{"https://www.zapimoveis.com.br/venda/sp/"})
	first.RecordOutcome("https://www.zapimoveis.com.br/imovel/casa-id-1/", model.OutcomeSuccess, "")
	first.RecordOutcome("https://www.zapimoveis.com.br/imovel/casa-id-2/", model.OutcomeBlocked, "HTTP 403")
	first.Finish()

	id, err := cdb.SaveRunReport(ctx, first)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == 0 {
		t.Error("expected non-zero run id")
	}

	second := model.NewScrapeReport(nil)
	second.DeepOnly = true
	second.Finish()
	if _, err := cdb.SaveRunReport(ctx, second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history, err := cdb.RunHistory(ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(history))
	}
	if !history[0].DeepOnly {
		t.Error("expected newest run first")
	}
	if history[1].Stats.Total != 2 || history[1].Stats.Blocked != 1 {
		t.Errorf("got stats %+v", history[1].Stats)
	}

	limited, err := cdb.RunHistory(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 run with limit, got %d", len(limited))
	}

	report, err := cdb.GetRunReport(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report == nil {
		t.Fatal("expected report, got nil")
	}
	if report.Stats.Blocked != 1 {
		t.Errorf("got blocked %d", report.Stats.Blocked)
	}
	if report.Errors["https://www.zapimoveis.com.br/imovel/casa-id-2/"] != "HTTP 403" {
		t.Errorf("got errors %v", report.Errors)
	}

	latest, err := cdb.LatestRunReport(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest == nil || !latest.DeepOnly {
		t.Error("expected the deep-only run to be latest")
	}

	missing, err := cdb.GetRunReport(ctx, 9999)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown id, got %+v", missing)
	}
}
