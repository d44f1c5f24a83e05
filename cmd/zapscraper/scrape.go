package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"zapscraper/internal/client"
	"zapscraper/internal/compliance"
	"zapscraper/internal/config"
	"zapscraper/internal/extract"
	"zapscraper/internal/images"
	"zapscraper/internal/log"
	"zapscraper/internal/model"
	"zapscraper/internal/pipeline"
	"zapscraper/internal/proxy"
	"zapscraper/internal/report"
	"zapscraper/internal/storage"
)

// proxyProbeURL is the small, fast page proxies are probed with. Every
// proxy fetches robots.txt anyway, so the probe warms that cache.
const proxyProbeURL = "https://www.zapimoveis.com.br/robots.txt"

// detailRefreshWindow is how long a deep-scraped detail page stays
// fresh. A listing whose page was fetched within the window is skipped;
// its extracted fields are already merged into the CSV.
const detailRefreshWindow = 12 * time.Hour

// NewScrapeCmd creates the scrape command.
func NewScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape [url...]",
		Short: "Scrape real-estate listings from zapimoveis.com.br",
		Long: `Scrape collects real-estate listings from zapimoveis.com.br.

Each URL argument is either a search-results page or an individual
listing page. Search pages are paginated and every listing card is
extracted; listings missing detail data are then deep-scraped from
their own pages. Results accumulate in scraped_data.csv and the SQLite
history database.

Examples:
  # Scrape the default sale search
  zapscraper scrape

  # Scrape a specific search
  zapscraper scrape https://www.zapimoveis.com.br/venda/casas/pr+curitiba/

  # Scrape individual listings
  zapscraper scrape https://www.zapimoveis.com.br/imovel/casa-id-123/

  # Deep-scrape listings already in the CSV that lack detail data
  zapscraper scrape --deep-only

  # Route through rotating SOCKS5 proxies
  zapscraper scrape --proxy socks5://127.0.0.1:9050 --proxy socks5://127.0.0.1:9051

  # Write a Markdown report to a file
  zapscraper scrape --markdown --report-file report.md`,
		Args: cobra.ArbitraryArgs,
		RunE: runScrapeCmd,
	}

	// Scrape behavior flags
	cmd.Flags().Bool("deep-only", false,
		"Skip search pages; deep-scrape listings already stored in the CSV")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of search result pages per target")
	cmd.Flags().IntP("concurrency", "b", config.DefaultMaxConcurrent,
		"Number of listings deep-scraped concurrently")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Connection timeout for each request")
	cmd.Flags().IntP("retries", "r", config.DefaultMaxRetries,
		"Retry attempts per URL before it counts as failed")
	cmd.Flags().Duration("min-delay", config.DefaultMinDelay,
		"Minimum politeness delay between requests to the same host")
	cmd.Flags().Duration("max-delay", config.DefaultMaxDelay,
		"Maximum politeness delay between requests to the same host")

	// Output flags
	cmd.Flags().StringP("output-dir", "o", ".",
		"Directory for the CSV file and downloaded images")
	cmd.Flags().Bool("save-images", true,
		"Download listing photos")
	cmd.Flags().Int("max-images", config.DefaultMaxImagesPerListing,
		"Maximum photos downloaded per listing")

	// Proxy flags
	cmd.Flags().StringArray("proxy", nil,
		"Proxy URL for the rotation pool (socks5:// or http://, repeatable)")
	cmd.Flags().String("proxy-file", "",
		"File with proxy URLs, one per line")
	cmd.Flags().String("proxy-strategy", "round-robin",
		"Proxy rotation strategy: round-robin, random, or least-failures")
	cmd.Flags().Bool("check-proxies", false,
		"Probe each proxy before the run and drop the dead ones")

	// Compliance flags
	cmd.Flags().Bool("ignore-robots", false,
		"Skip the robots.txt check (for testing against local fixtures)")
	cmd.Flags().String("user-agent", "",
		"Fixed User-Agent (default: rotating browser fingerprints)")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .zapscraper in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().String("report-file", "",
		"Write the report to the given file instead of stdout")

	return cmd
}

// runScrapeCmd executes the scrape command.
func runScrapeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildScrapeConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.NewSecureLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)

	// SIGINT/SIGTERM cancel the run; in-flight listings finish or abort
	// at their next context check.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runScrape(ctx, cfg, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildScrapeConfig creates a Config from cobra command flags.
func buildScrapeConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error

	cfg.DeepOnly, err = cmd.Flags().GetBool("deep-only")
	if err != nil {
		return nil, err
	}

	cfg.MaxPages, err = cmd.Flags().GetInt("max-pages")
	if err != nil {
		return nil, err
	}

	cfg.MaxConcurrent, err = cmd.Flags().GetInt("concurrency")
	if err != nil {
		return nil, err
	}

	cfg.Timeout, err = cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, err
	}

	cfg.MaxRetries, err = cmd.Flags().GetInt("retries")
	if err != nil {
		return nil, err
	}

	cfg.MinDelay, err = cmd.Flags().GetDuration("min-delay")
	if err != nil {
		return nil, err
	}

	cfg.MaxDelay, err = cmd.Flags().GetDuration("max-delay")
	if err != nil {
		return nil, err
	}

	cfg.OutputDir, err = cmd.Flags().GetString("output-dir")
	if err != nil {
		return nil, err
	}

	cfg.SaveImages, err = cmd.Flags().GetBool("save-images")
	if err != nil {
		return nil, err
	}

	cfg.MaxImagesPerListing, err = cmd.Flags().GetInt("max-images")
	if err != nil {
		return nil, err
	}

	cfg.Proxies, err = cmd.Flags().GetStringArray("proxy")
	if err != nil {
		return nil, err
	}

	proxyFile, err := cmd.Flags().GetString("proxy-file")
	if err != nil {
		return nil, err
	}
	if proxyFile != "" {
		fromFile, err := config.LoadProxyFile(proxyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load proxy file %s: %w", proxyFile, err)
		}
		cfg.Proxies = append(cfg.Proxies, fromFile...)
	}

	cfg.ProxyStrategy, err = cmd.Flags().GetString("proxy-strategy")
	if err != nil {
		return nil, err
	}

	cfg.CheckProxies, err = cmd.Flags().GetBool("check-proxies")
	if err != nil {
		return nil, err
	}

	ignoreRobots, err := cmd.Flags().GetBool("ignore-robots")
	if err != nil {
		return nil, err
	}
	cfg.RespectRobots = !ignoreRobots

	cfg.UserAgent, err = cmd.Flags().GetString("user-agent")
	if err != nil {
		return nil, err
	}

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// Load site-specific configurations from config file.
	// If the user explicitly specified a config file path, error if not
	// found. If no path was specified, silently use an empty config.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	if configPath != "" {
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else if explicitConfigPath {
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	} else {
		cfg.SiteConfigs = &config.File{
			Sites: make(map[string]config.SiteConfig),
		}
	}

	cfg.JSONReport, err = cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}

	cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown")
	if err != nil {
		return nil, err
	}

	cfg.ReportFile, err = cmd.Flags().GetString("report-file")
	if err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)
	cfg.DBDir = config.XDGDataDir()

	// Positional arguments are the target URLs. With no arguments and no
	// --deep-only, scrape the default sale search.
	cfg.Targets = args
	if len(cfg.Targets) == 0 && !cfg.DeepOnly {
		cfg.Targets = []string{config.DefaultSearchURL}
	}

	return cfg, nil
}

// runScrape wires the run together and executes the pipeline.
func runScrape(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting scrape",
		"targets", cfg.Targets,
		"deepOnly", cfg.DeepOnly,
		"concurrency", cfg.MaxConcurrent,
		"proxies", len(cfg.Proxies),
	)

	db, err := storage.Open(cfg.DBDir, storage.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer db.Close()

	if err := os.MkdirAll(cfg.OutputDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	csvStore, err := storage.NewCSVStore(cfg.CSVPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to open CSV store: %w", err)
	}

	// Deep-only mode needs stored listings to work on.
	if cfg.DeepOnly {
		cfg.MaxConcurrent = 1
		pending, err := csvStore.PendingDeepSearch()
		if err != nil {
			return fmt.Errorf("failed to read pending listings: %w", err)
		}
		if len(pending) == 0 {
			return fmt.Errorf("%w in %s (run a search scrape first)", storage.ErrNoPendingListings, cfg.CSVPath())
		}
		logger.Info("deep-only mode", "pending", len(pending))
	}

	siteConfig := siteConfigFor(cfg)
	selectors := extract.DefaultSelectors().Override(siteConfig.Selectors)

	// One proxy pick serves the whole run; blocks rotate the browser
	// fingerprint and charge the proxy in the pool.
	var pool *proxy.Pool
	var proxyURL string
	if len(cfg.Proxies) > 0 {
		pool, err = proxy.NewPool(cfg.Proxies, cfg.ProxyStrategy, logger)
		if err != nil {
			return fmt.Errorf("failed to build proxy pool: %w", err)
		}
		if cfg.CheckProxies {
			working := proxy.NewChecker(proxyProbeURL, cfg.Timeout).Prune(ctx, pool)
			if working == 0 {
				return errors.New("no working proxies in the pool")
			}
			logger.Info("proxy check complete", "working", working, "pool", pool.Size())
		}
		proxyURL, err = pool.Next()
		if err != nil {
			return fmt.Errorf("failed to pick a proxy: %w", err)
		}
		logger.Info("proxy selected", "proxy", proxyURL, "pool", pool.Size())
	}

	clientOpts := []client.Option{client.WithHeaders(siteHeaders(siteConfig))}
	if proxyURL != "" {
		clientOpts = append(clientOpts, client.WithProxy(proxyURL))
	}
	httpClient, err := client.New(cfg, logger, clientOpts...)
	if err != nil {
		return fmt.Errorf("failed to create HTTP client: %w", err)
	}

	minDelay := cfg.MinDelay
	if siteConfig.DelaySeconds > 0 {
		minDelay = time.Duration(siteConfig.DelaySeconds) * time.Second
	}
	maxDelay := cfg.MaxDelay
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	robots := compliance.NewRobotsCache(httpClient, config.XDGCacheDir(), logger)
	limiter := compliance.NewRateLimiter(minDelay, maxDelay)
	gate := compliance.NewGate(robots, limiter, httpClient.Fingerprint().UserAgent, cfg.RespectRobots, logger)

	var downloader pipeline.ImageDownloader
	if cfg.SaveImages && cfg.MaxImagesPerListing > 0 {
		dl, err := images.NewDownloader(httpClient, cfg.OutputDir, cfg.MaxImagesPerListing, cfg.ImageDownloadDelay, logger)
		if err != nil {
			return fmt.Errorf("failed to create image downloader: %w", err)
		}
		downloader = dl
	}

	procOpts := []pipeline.ProcessorOption{
		pipeline.WithPageRecorder(db, detailRefreshWindow),
	}
	if pool != nil {
		procOpts = append(procOpts, pipeline.WithProcessorProxy(pool, proxyURL))
	}
	processor := pipeline.NewProcessor(httpClient, gate, extract.NewListingExtractor(selectors), cfg, logger, procOpts...)

	p := pipeline.New(pipeline.WithLogger(logger))
	if !cfg.DeepOnly {
		p.AddStep(pipeline.NewComplianceStep(gate, logger))
		p.AddStep(pipeline.NewSearchStep(httpClient, gate, extract.NewSearchExtractor(selectors), csvStore, cfg.MaxPages, logger))
	}
	p.AddStep(pipeline.NewDeepScrapeStep(processor, csvStore, downloader, cfg.MaxConcurrent, logger))
	p.AddStep(pipeline.NewPersistReportStep(db, logger))

	scrapeReport := model.NewScrapeReport(cfg.Targets)
	scrapeReport.DeepOnly = cfg.DeepOnly
	scrapeReport.OutputCSV = csvStore.Path()

	fmt.Printf("Scraping %d target(s)...\n", len(cfg.Targets))
	execErr := p.Execute(ctx, scrapeReport)
	if scrapeReport.FinishedAt.IsZero() {
		scrapeReport.Finish()
	}

	// A cancelled run still gets its partial report; everything scraped
	// so far is already in the CSV.
	if reportErr := outputReport(cfg, scrapeReport); reportErr != nil {
		logger.Error("report output failed", "error", reportErr)
		if execErr == nil {
			execErr = reportErr
		}
	}

	if errors.Is(execErr, context.Canceled) {
		fmt.Fprintln(os.Stderr, "Scrape interrupted; partial results saved.")
	}
	return execErr
}

// siteConfigFor resolves the site configuration for the run's portal
// host. The host is taken from the first target URL so that runs against
// test fixtures pick up their own overrides.
func siteConfigFor(cfg *config.Config) config.SiteConfig {
	host := "www.zapimoveis.com.br"
	if len(cfg.Targets) > 0 {
		if u, err := url.Parse(cfg.Targets[0]); err == nil && u.Host != "" {
			host = u.Host
		}
	}
	if cfg.SiteConfigs == nil {
		return config.SiteConfig{}
	}
	return cfg.SiteConfigs.GetSiteConfig(host)
}

// siteHeaders flattens a site configuration into request headers.
func siteHeaders(sc config.SiteConfig) map[string]string {
	headers := make(map[string]string, len(sc.Headers)+1)
	for k, v := range sc.Headers {
		headers[k] = v
	}
	if sc.Cookie != "" {
		headers["Cookie"] = sc.Cookie
	}
	return headers
}

// outputReport writes the run report in the requested format. When a
// report file is configured the formatted report goes there and the
// terminal still gets the human-readable summary.
func outputReport(cfg *config.Config, scrapeReport *model.ScrapeReport) error {
	var writers []report.Writer

	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create report directory: %w", err)
			}
		}
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()

		writers = append(writers,
			formatWriter(cfg, f),
			report.NewSimpleWriter(os.Stdout, report.WithVerbose(cfg.Verbose)),
		)
	} else {
		writers = append(writers, formatWriter(cfg, os.Stdout))
	}

	_, err := report.NewMultiWriter(writers...).Write(scrapeReport)
	return err
}

// formatWriter picks the report writer for the configured format.
func formatWriter(cfg *config.Config, output *os.File) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(output, report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
}
