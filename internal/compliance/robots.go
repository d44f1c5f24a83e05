package compliance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"zapscraper/internal/model"
)

// robotsCacheTTL is how long a cached robots.txt stays valid on disk.
// Sites rarely change their robots rules; a day keeps repeat runs from
// refetching it while still picking up changes promptly.
const robotsCacheTTL = 24 * time.Hour

// Fetcher fetches a page. Satisfied by *client.Client.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*model.Page, error)
}

// RobotsCache fetches and caches robots.txt per host. Parsed rules are
// held in memory for the run and mirrored to the XDG cache directory so
// consecutive runs skip the fetch.
type RobotsCache struct {
	fetcher  Fetcher
	cacheDir string
	logger   *slog.Logger

	mu    sync.Mutex
	hosts map[string]*robotstxt.RobotsData
}

// NewRobotsCache creates a robots.txt cache backed by cacheDir.
// An empty cacheDir disables the on-disk mirror.
func NewRobotsCache(fetcher Fetcher, cacheDir string, logger *slog.Logger) *RobotsCache {
	return &RobotsCache{
		fetcher:  fetcher,
		cacheDir: cacheDir,
		logger:   logger,
		hosts:    make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether userAgent may fetch rawURL according to the
// host's robots.txt. Unreachable or missing robots.txt permits crawling,
// matching the de facto standard.
func (rc *RobotsCache) Allowed(ctx context.Context, rawURL, userAgent string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("parse URL: %w", err)
	}

	data, err := rc.forHost(ctx, u)
	if err != nil {
		// Treat fetch failures as permissive but log them; a host
		// without robots.txt is the common case.
		rc.logger.Debug("robots.txt unavailable, allowing", "host", u.Host, "error", err)
		return true, nil
	}

	group := data.FindGroup(userAgent)
	return group.Test(u.Path), nil
}

// CrawlDelay returns the robots.txt crawl-delay for the host, or zero.
func (rc *RobotsCache) CrawlDelay(ctx context.Context, rawURL, userAgent string) time.Duration {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	data, err := rc.forHost(ctx, u)
	if err != nil {
		return 0
	}
	return data.FindGroup(userAgent).CrawlDelay
}

// forHost returns parsed robots rules for the URL's host, consulting the
// in-memory map, then the disk cache, then the network.
func (rc *RobotsCache) forHost(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if data, ok := rc.hosts[u.Host]; ok {
		return data, nil
	}

	if raw, ok := rc.readDiskCache(u.Host); ok {
		data, err := robotstxt.FromBytes(raw)
		if err == nil {
			rc.hosts[u.Host] = data
			return data, nil
		}
	}

	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
	page, err := rc.fetcher.Fetch(ctx, robotsURL)
	if err != nil {
		return nil, err
	}

	data, err := robotstxt.FromStatusAndBytes(page.StatusCode, page.Raw)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	rc.hosts[u.Host] = data
	if page.StatusCode == 200 {
		rc.writeDiskCache(u.Host, page.Raw)
	}
	return data, nil
}

// cachePath derives a stable file name for a host.
func (rc *RobotsCache) cachePath(host string) string {
	sum := sha256.Sum256([]byte(host))
	return filepath.Join(rc.cacheDir, "robots_"+hex.EncodeToString(sum[:8])+".txt")
}

func (rc *RobotsCache) readDiskCache(host string) ([]byte, bool) {
	if rc.cacheDir == "" {
		return nil, false
	}
	path := rc.cachePath(host)
	info, err := os.Stat(path)
	if err != nil || time.Since(info.ModTime()) > robotsCacheTTL {
		return nil, false
	}
	raw, err := os.ReadFile(path) //nolint:gosec // Path is derived from a hash, not user input
	if err != nil {
		return nil, false
	}
	return raw, true
}

func (rc *RobotsCache) writeDiskCache(host string, raw []byte) {
	if rc.cacheDir == "" {
		return
	}
	if err := os.MkdirAll(rc.cacheDir, 0750); err != nil {
		rc.logger.Debug("cannot create robots cache dir", "error", err)
		return
	}
	if err := os.WriteFile(rc.cachePath(host), raw, 0600); err != nil {
		rc.logger.Debug("cannot write robots cache", "error", err)
	}
}
