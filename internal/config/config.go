package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// These values mirror the conservative defaults the scraper has shipped
// with: polite enough to avoid tripping anti-bot heuristics while still
// making progress on large result sets.
const (
	// DefaultSearchURL is scraped when no target URL is provided.
	DefaultSearchURL = "https://www.zapimoveis.com.br/venda/"

	// DefaultTimeout applies to each HTTP request. The portal can be slow
	// behind its CDN during peak hours, so 30 seconds is generous without
	// letting a hung connection stall a worker for minutes.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxConcurrent limits concurrent target processing. Three
	// workers keep the per-host request rate low enough that the rate
	// limiter, not the semaphore, is usually the bottleneck.
	DefaultMaxConcurrent = 3

	// DefaultMaxRetries is the number of attempts per URL before giving up.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the base delay before the first retry.
	// Subsequent retries back off exponentially via RetryBackoff.
	DefaultRetryDelay = 5 * time.Second

	// DefaultRetryBackoff is the multiplier applied per retry attempt.
	DefaultRetryBackoff = 2.0

	// DefaultMinDelay and DefaultMaxDelay bound the jittered politeness
	// delay between consecutive requests to the same host.
	DefaultMinDelay = 2 * time.Second
	DefaultMaxDelay = 8 * time.Second

	// DefaultMaxPages caps search-result pagination. The portal paginates
	// roughly 30 listings per page, so 50 pages covers most searches.
	DefaultMaxPages = 50

	// DefaultMaxImagesPerListing caps image downloads per listing.
	DefaultMaxImagesPerListing = 20

	// DefaultImageDownloadDelay is the pause between image downloads.
	DefaultImageDownloadDelay = 500 * time.Millisecond

	// DefaultCSVFile is the primary output artifact.
	DefaultCSVFile = "scraped_data.csv"

	// DefaultMaxBodySize limits the maximum response body size to read.
	// 5MB is sufficient for any listing page while preventing memory
	// exhaustion from unexpectedly large responses.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// AppName is the application name used for XDG directory paths.
	AppName = "zapscraper"
)

// Config holds all configuration options for zapscraper.
// This struct is designed to be populated from CLI flags and passed through
// the application via dependency injection rather than global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., CrawlConfig, ImageConfig) for simplicity. The number of options
// is manageable, and nesting would add complexity without significant benefit.
type Config struct {
	// Targets is the list of URLs to process. Each entry is either a
	// search-results URL or an individual listing URL.
	Targets []string

	// DeepOnly skips search-page scraping entirely. Listing URLs still
	// missing deep-search data are read from the existing CSV and
	// deep-scraped sequentially with a single shared client.
	DeepOnly bool

	// OutputDir is the directory for the CSV artifact and downloaded
	// images. Defaults to the current directory.
	OutputDir string

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// MaxConcurrent is the number of target URLs processed concurrently.
	// Forced to 1 in deep-only mode.
	MaxConcurrent int

	// MaxRetries is the number of attempts per URL before it counts as
	// failed.
	MaxRetries int

	// RetryDelay is the base delay before the first retry.
	RetryDelay time.Duration

	// RetryBackoff is the exponential multiplier applied per attempt.
	RetryBackoff float64

	// MinDelay and MaxDelay bound the jittered politeness delay between
	// requests to the same host.
	MinDelay time.Duration
	MaxDelay time.Duration

	// MaxPages caps search-result pagination per target.
	// A value of 0 means use the default (DefaultMaxPages).
	MaxPages int

	// SaveImages enables downloading listing images.
	SaveImages bool

	// MaxImagesPerListing caps downloads per listing.
	MaxImagesPerListing int

	// ImageDownloadDelay is the pause between image downloads.
	ImageDownloadDelay time.Duration

	// RespectRobots controls the robots.txt gate. Disabling it is meant
	// for testing against local fixtures, not for production scraping.
	RespectRobots bool

	// Proxies lists proxy URLs (socks5:// or http://) for the rotation
	// pool. Empty means direct connections.
	Proxies []string

	// ProxyStrategy selects the pool rotation strategy:
	// "round-robin", "random", or "least-failures".
	ProxyStrategy string

	// CheckProxies probes every proxy in the pool before the run and
	// drops the ones that cannot carry traffic.
	CheckProxies bool

	// UserAgent overrides the rotating User-Agent when non-empty.
	UserAgent string

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only info and above are logged.
	Verbose bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches for .zapscraper in the current
	// directory and then in the user's home directory.
	ConfigFilePath string

	// SiteConfigs holds site-specific configurations loaded from the
	// config file.
	SiteConfigs *File

	// JSONReport enables JSON report output instead of the human-readable
	// summary. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport enables Markdown report output.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	ReportFile string

	// DBDir is the directory path for storing the SQLite crawl database.
	// When empty, the XDG data directory is used.
	DBDir string

	// MaxBodySize is the maximum response body size in bytes to read.
	// Responses larger than this are truncated.
	MaxBodySize int64
}

// NewConfig creates a new Config with default values.
// All fields are set to safe, sensible defaults that work for most use cases.
// Users can override specific values after creation.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (e.g., timeout, delays).
// This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		OutputDir:           ".",
		Timeout:             DefaultTimeout,
		MaxConcurrent:       DefaultMaxConcurrent,
		MaxRetries:          DefaultMaxRetries,
		RetryDelay:          DefaultRetryDelay,
		RetryBackoff:        DefaultRetryBackoff,
		MinDelay:            DefaultMinDelay,
		MaxDelay:            DefaultMaxDelay,
		MaxPages:            DefaultMaxPages,
		SaveImages:          true,
		MaxImagesPerListing: DefaultMaxImagesPerListing,
		ImageDownloadDelay:  DefaultImageDownloadDelay,
		RespectRobots:       true,
		ProxyStrategy:       "round-robin",
		MaxBodySize:         DefaultMaxBodySize,
	}
}

// CSVPath returns the path of the CSV artifact inside the output directory.
func (c *Config) CSVPath() string {
	return filepath.Join(c.OutputDir, DefaultCSVFile)
}

// ImagesDir returns the directory downloaded images are stored under.
func (c *Config) ImagesDir() string {
	return filepath.Join(c.OutputDir, "images")
}

// XDGDataDir returns the XDG data directory for zapscraper.
// On Linux: ~/.local/share/zapscraper
// On macOS: ~/Library/Application Support/zapscraper
// On Windows: %LOCALAPPDATA%\zapscraper
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for zapscraper.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for zapscraper.
// The robots.txt cache lives here.
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// knownProxyStrategies are the accepted --proxy-strategy values.
var knownProxyStrategies = map[string]bool{
	"round-robin":    true,
	"random":         true,
	"least-failures": true,
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// This is called once after CLI parsing, before any scraping begins.
//
// We chose to return the first error found rather than collecting all
// errors because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	// Deep-only mode reads targets from the CSV; otherwise we need at
	// least one URL (the CLI injects the default search URL).
	if len(c.Targets) == 0 && !c.DeepOnly {
		return ErrNoTarget
	}

	// Timeout must be positive; zero timeout would cause immediate failures
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	// MaxConcurrent must be positive; zero would mean no processing
	if c.MaxConcurrent <= 0 {
		return ErrInvalidConcurrency
	}

	if c.MaxRetries < 0 {
		return ErrInvalidRetries
	}

	if c.RetryBackoff < 1.0 {
		return ErrInvalidBackoff
	}

	// Politeness window must be ordered and non-negative
	if c.MinDelay < 0 || c.MaxDelay < c.MinDelay {
		return ErrInvalidDelayWindow
	}

	// JSONReport and MarkdownReport are mutually exclusive
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if !knownProxyStrategies[c.ProxyStrategy] {
		return ErrUnknownProxyStrategy
	}

	if c.MaxImagesPerListing < 0 {
		return ErrInvalidMaxImages
	}

	// MaxBodySize must be non-negative; 0 means use the default
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	return nil
}
