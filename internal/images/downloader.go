package images

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"zapscraper/internal/extract"
	"zapscraper/internal/model"
)

// validExtensions are the image formats the portal serves. Anything
// else is saved as jpg.
var validExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"gif":  true,
	"webp": true,
}

// listingIDPattern extracts the numeric id from a listing URL slug.
var listingIDPattern = regexp.MustCompile(`id-(\d+)`)

// Fetcher fetches an image URL and returns the response.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*model.Page, error)
}

// Downloader saves listing photos under <outputDir>/images/<listing>/
// and records the local paths back onto the listing.
type Downloader struct {
	fetcher   Fetcher
	outputDir string
	imagesDir string
	maxImages int
	delay     time.Duration
	inspector *Inspector
	logger    *slog.Logger

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDownloader creates a downloader rooted at outputDir. maxImages
// caps downloads per listing; delay spaces consecutive downloads.
func NewDownloader(fetcher Fetcher, outputDir string, maxImages int, delay time.Duration, logger *slog.Logger) (*Downloader, error) {
	imagesDir := filepath.Join(outputDir, "images")
	if err := os.MkdirAll(imagesDir, 0750); err != nil {
		return nil, fmt.Errorf("create images directory: %w", err)
	}
	return &Downloader{
		fetcher:   fetcher,
		outputDir: outputDir,
		imagesDir: imagesDir,
		maxImages: maxImages,
		delay:     delay,
		inspector: NewInspector(logger),
		logger:    logger,
		sleep:     sleepCtx,
	}, nil
}

// DownloadListingImages downloads up to maxImages photos of one
// listing, sets listing.ImagesLocal to the paths relative to the output
// directory, and reports EXIF findings and image counts to report.
// Individual download failures are logged and skipped.
func (d *Downloader) DownloadListingImages(ctx context.Context, listing *model.Listing, report *model.ScrapeReport) (int, error) {
	if listing == nil || len(listing.Images) == 0 {
		return 0, nil
	}

	urls := listing.Images
	if d.maxImages > 0 && len(urls) > d.maxImages {
		urls = urls[:d.maxImages]
	}

	dirName := ListingDirName(listing.URL)
	dir := filepath.Join(d.imagesDir, dirName)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return 0, fmt.Errorf("create listing image directory: %w", err)
	}

	d.logger.Info("downloading listing images",
		"listing", dirName,
		"count", len(urls),
	)

	var local []string
	for i, imageURL := range urls {
		if err := ctx.Err(); err != nil {
			return len(local), err
		}

		relPath, data, err := d.downloadOne(ctx, imageURL, i, dir)
		if err != nil {
			d.logger.Debug("image download failed", "url", imageURL, "error", err)
		} else {
			local = append(local, relPath)
			if report != nil {
				report.CountImage()
				for _, finding := range d.inspector.Inspect(data, imageURL, listing.URL) {
					report.AddFinding(finding)
				}
			}
		}

		if i < len(urls)-1 && d.delay > 0 {
			if err := d.sleep(ctx, d.delay); err != nil {
				return len(local), err
			}
		}
	}

	if len(local) > 0 {
		listing.ImagesLocal = local
		d.logger.Info("downloaded listing images", "listing", dirName, "saved", len(local))
	}
	return len(local), nil
}

// downloadOne fetches one image and writes it as image_NNN.<ext>,
// returning the path relative to the output directory and the bytes for
// EXIF inspection.
func (d *Downloader) downloadOne(ctx context.Context, imageURL string, index int, dir string) (string, []byte, error) {
	page, err := d.fetcher.Fetch(ctx, imageURL)
	if err != nil {
		return "", nil, err
	}
	if page.StatusCode != 200 {
		return "", nil, fmt.Errorf("HTTP %d", page.StatusCode)
	}

	filename := fmt.Sprintf("image_%03d.%s", index+1, imageExtension(imageURL))
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, page.Raw, 0600); err != nil {
		return "", nil, fmt.Errorf("write image: %w", err)
	}

	rel, err := filepath.Rel(d.outputDir, path)
	if err != nil {
		rel = path
	}
	return filepath.ToSlash(rel), page.Raw, nil
}

// ListingDirName derives a file-system safe directory name for a
// listing. URLs carrying the portal's numeric id become listing_<id>;
// anything else falls back to a slug of the last path segment.
func ListingDirName(rawURL string) string {
	if rawURL == "" {
		return "unknown"
	}
	if m := listingIDPattern.FindStringSubmatch(rawURL); m != nil {
		return "listing_" + m[1]
	}

	trimmed := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		trimmed = u.Path
	}
	trimmed = strings.TrimRight(trimmed, "/")
	parts := strings.Split(trimmed, "/")
	last := parts[len(parts)-1]
	if i := strings.IndexByte(last, '?'); i >= 0 {
		last = last[:i]
	}

	slug := extract.Slugify(last)
	if slug == "" {
		return "unknown"
	}
	if len(slug) > 50 {
		slug = slug[:50]
	}
	return slug
}

// imageExtension returns the validated file extension for an image URL.
func imageExtension(imageURL string) string {
	if !strings.Contains(imageURL, ".") {
		return "jpg"
	}
	parts := strings.Split(imageURL, ".")
	ext := parts[len(parts)-1]
	if i := strings.IndexByte(ext, '?'); i >= 0 {
		ext = ext[:i]
	}
	ext = strings.ToLower(ext)
	if !validExtensions[ext] {
		return "jpg"
	}
	return ext
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
