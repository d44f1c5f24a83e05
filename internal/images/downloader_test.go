package images

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"zapscraper/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// imageFetcher serves canned image bytes by URL.
type imageFetcher struct {
	pages map[string]*model.Page
	calls []string
}

func (f *imageFetcher) Fetch(_ context.Context, rawURL string) (*model.Page, error) {
	f.calls = append(f.calls, rawURL)
	if page, ok := f.pages[rawURL]; ok {
		return page, nil
	}
	return &model.Page{URL: rawURL, StatusCode: 404}, nil
}

// TestDownloadListingImages tests the per-listing download flow.
func TestDownloadListingImages(t *testing.T) {
	t.Parallel()

	t.Run("downloads and records relative paths", func(t *testing.T) {
		t.Parallel()

		fetcher := &imageFetcher{pages: map[string]*model.Page{
			"https://resizedimgs.zapimoveis.com.br/a.jpg": {StatusCode: 200, Raw: []byte("jpegbytes")},
			"https://resizedimgs.zapimoveis.com.br/b.png": {StatusCode: 200, Raw: []byte("pngbytes")},
		}}
		outputDir := t.TempDir()
		d, err := NewDownloader(fetcher, outputDir, 20, 0, testLogger())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		listing := &model.Listing{
			URL: "https://www.zapimoveis.com.br/imovel/casa-id-123/",
			Images: []string{
				"https://resizedimgs.zapimoveis.com.br/a.jpg",
				"https://resizedimgs.zapimoveis.com.br/b.png",
			},
		}
		report := model.NewScrapeReport(nil)

		saved, err := d.DownloadListingImages(context.Background(), listing, report)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if saved != 2 {
			t.Errorf("got %d saved, expected 2", saved)
		}
		if len(listing.ImagesLocal) != 2 {
			t.Fatalf("got local paths %v", listing.ImagesLocal)
		}
		if listing.ImagesLocal[0] != "images/listing_123/image_001.jpg" {
			t.Errorf("got path %q", listing.ImagesLocal[0])
		}
		if listing.ImagesLocal[1] != "images/listing_123/image_002.png" {
			t.Errorf("got path %q", listing.ImagesLocal[1])
		}
		if report.ImagesDownloaded != 2 {
			t.Errorf("got %d images in report", report.ImagesDownloaded)
		}

		data, err := os.ReadFile(filepath.Join(outputDir, "images", "listing_123", "image_001.jpg"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != "jpegbytes" {
			t.Errorf("got file content %q", data)
		}
	})

	t.Run("max images caps downloads", func(t *testing.T) {
		t.Parallel()

		fetcher := &imageFetcher{pages: map[string]*model.Page{
			"https://resizedimgs.zapimoveis.com.br/1.jpg": {StatusCode: 200, Raw: []byte("x")},
			"https://resizedimgs.zapimoveis.com.br/2.jpg": {StatusCode: 200, Raw: []byte("x")},
			"https://resizedimgs.zapimoveis.com.br/3.jpg": {StatusCode: 200, Raw: []byte("x")},
		}}
		d, err := NewDownloader(fetcher, t.TempDir(), 2, 0, testLogger())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		listing := &model.Listing{
			URL: "https://www.zapimoveis.com.br/imovel/casa-id-1/",
			Images: []string{
				"https://resizedimgs.zapimoveis.com.br/1.jpg",
				"https://resizedimgs.zapimoveis.com.br/2.jpg",
				"https://resizedimgs.zapimoveis.com.br/3.jpg",
			},
		}
		saved, err := d.DownloadListingImages(context.Background(), listing, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if saved != 2 || len(fetcher.calls) != 2 {
			t.Errorf("got saved=%d calls=%d, expected 2/2", saved, len(fetcher.calls))
		}
	})

	t.Run("failed downloads are skipped", func(t *testing.T) {
		t.Parallel()

		fetcher := &imageFetcher{pages: map[string]*model.Page{
			"https://resizedimgs.zapimoveis.com.br/ok.jpg": {StatusCode: 200, Raw: []byte("x")},
		}}
		d, err := NewDownloader(fetcher, t.TempDir(), 20, 0, testLogger())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		listing := &model.Listing{
			URL: "https://www.zapimoveis.com.br/imovel/casa-id-2/",
			Images: []string{
				"https://resizedimgs.zapimoveis.com.br/missing.jpg",
				"https://resizedimgs.zapimoveis.com.br/ok.jpg",
			},
		}
		saved, err := d.DownloadListingImages(context.Background(), listing, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if saved != 1 {
			t.Errorf("got %d saved, expected 1", saved)
		}
		if len(listing.ImagesLocal) != 1 || listing.ImagesLocal[0] != "images/listing_2/image_002.jpg" {
			t.Errorf("got local paths %v", listing.ImagesLocal)
		}
	})

	t.Run("no images is a no-op", func(t *testing.T) {
		t.Parallel()

		d, err := NewDownloader(&imageFetcher{}, t.TempDir(), 20, 0, testLogger())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		saved, err := d.DownloadListingImages(context.Background(), &model.Listing{URL: "https://www.zapimoveis.com.br/imovel/casa-id-3/"}, nil)
		if err != nil || saved != 0 {
			t.Errorf("got saved=%d err=%v", saved, err)
		}
	})
}

// TestListingDirName tests directory naming for listings.
func TestListingDirName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "numeric id",
			url:  "https://www.zapimoveis.com.br/imovel/apartamento-2-quartos-id-98765/",
			want: "listing_98765",
		},
		{
			name: "slug fallback",
			url:  "https://www.zapimoveis.com.br/imovel/casa-única/",
			want: "casa-unica",
		},
		{
			name: "query params stripped",
			url:  "https://www.zapimoveis.com.br/imovel/casa-simples/?foto=3",
			want: "casa-simples",
		},
		{
			name: "empty URL",
			url:  "",
			want: "unknown",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ListingDirName(tt.url); got != tt.want {
				t.Errorf("ListingDirName(%q) = %q, expected %q", tt.url, got, tt.want)
			}
		})
	}
}

// TestImageExtension tests extension validation.
func TestImageExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want string
	}{
		{name: "jpg", url: "https://x/foto.jpg", want: "jpg"},
		{name: "webp with query", url: "https://x/foto.webp?w=600", want: "webp"},
		{name: "uppercase", url: "https://x/foto.PNG", want: "png"},
		{name: "unknown extension", url: "https://x/foto.svg", want: "jpg"},
		{name: "no extension", url: "https://x/foto", want: "jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := imageExtension(tt.url); got != tt.want {
				t.Errorf("imageExtension(%q) = %q, expected %q", tt.url, got, tt.want)
			}
		})
	}
}
