package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"zapscraper/internal/config"
)

// parseScrapeConfig runs flag parsing and config construction the way
// runScrapeCmd does, without starting a scrape.
func parseScrapeConfig(t *testing.T, flags []string, args []string) (*config.Config, error) {
	t.Helper()

	cmd := NewScrapeCmd()
	if err := cmd.ParseFlags(flags); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}
	return buildScrapeConfig(cmd, args)
}

// TestBuildScrapeConfig tests CLI flag to Config translation.
func TestBuildScrapeConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults with no flags", func(t *testing.T) {
		t.Parallel()

		cfg, err := parseScrapeConfig(t, nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(cfg.Targets) != 1 || cfg.Targets[0] != config.DefaultSearchURL {
			t.Errorf("expected default search URL injected, got %v", cfg.Targets)
		}
		if cfg.Timeout != config.DefaultTimeout {
			t.Errorf("got timeout %v, expected %v", cfg.Timeout, config.DefaultTimeout)
		}
		if !cfg.RespectRobots {
			t.Error("expected RespectRobots to default to true")
		}
		if !cfg.SaveImages {
			t.Error("expected SaveImages to default to true")
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("positional args become targets", func(t *testing.T) {
		t.Parallel()

		targets := []string{
			"https://www.zapimoveis.com.br/venda/casas/pr+curitiba/",
			"https://www.zapimoveis.com.br/imovel/casa-id-123/",
		}
		cfg, err := parseScrapeConfig(t, nil, targets)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.Targets) != 2 {
			t.Fatalf("got %d targets, expected 2", len(cfg.Targets))
		}
		if cfg.Targets[0] != targets[0] {
			t.Errorf("got target %q", cfg.Targets[0])
		}
	})

	t.Run("deep-only does not inject the default URL", func(t *testing.T) {
		t.Parallel()

		cfg, err := parseScrapeConfig(t, []string{"--deep-only"}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !cfg.DeepOnly {
			t.Error("expected DeepOnly to be set")
		}
		if len(cfg.Targets) != 0 {
			t.Errorf("expected no targets, got %v", cfg.Targets)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("deep-only config should validate: %v", err)
		}
	})

	t.Run("scrape behavior flags", func(t *testing.T) {
		t.Parallel()

		cfg, err := parseScrapeConfig(t, []string{
			"--max-pages", "5",
			"--concurrency", "7",
			"--timeout", "10s",
			"--retries", "1",
			"--min-delay", "100ms",
			"--max-delay", "200ms",
			"--save-images=false",
			"--user-agent", "test-agent/1.0",
		}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.MaxPages != 5 {
			t.Errorf("got MaxPages %d", cfg.MaxPages)
		}
		if cfg.MaxConcurrent != 7 {
			t.Errorf("got MaxConcurrent %d", cfg.MaxConcurrent)
		}
		if cfg.Timeout != 10*time.Second {
			t.Errorf("got Timeout %v", cfg.Timeout)
		}
		if cfg.MaxRetries != 1 {
			t.Errorf("got MaxRetries %d", cfg.MaxRetries)
		}
		if cfg.MinDelay != 100*time.Millisecond || cfg.MaxDelay != 200*time.Millisecond {
			t.Errorf("got delay window %v..%v", cfg.MinDelay, cfg.MaxDelay)
		}
		if cfg.SaveImages {
			t.Error("expected SaveImages disabled")
		}
		if cfg.UserAgent != "test-agent/1.0" {
			t.Errorf("got UserAgent %q", cfg.UserAgent)
		}
	})

	t.Run("repeatable proxy flag", func(t *testing.T) {
		t.Parallel()

		cfg, err := parseScrapeConfig(t, []string{
			"--proxy", "socks5://127.0.0.1:9050",
			"--proxy", "http://127.0.0.1:8080",
			"--proxy-strategy", "random",
		}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.Proxies) != 2 {
			t.Fatalf("got %d proxies, expected 2", len(cfg.Proxies))
		}
		if cfg.ProxyStrategy != "random" {
			t.Errorf("got strategy %q", cfg.ProxyStrategy)
		}
	})

	t.Run("check-proxies flag", func(t *testing.T) {
		t.Parallel()

		cfg, err := parseScrapeConfig(t, []string{"--check-proxies"}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !cfg.CheckProxies {
			t.Error("expected CheckProxies to be set")
		}
	})

	t.Run("proxy file merges with proxy flags", func(t *testing.T) {
		t.Parallel()

		proxyFile := filepath.Join(t.TempDir(), "proxies.txt")
		content := "socks5://10.0.0.1:9050\n# comment\n\nsocks5://10.0.0.2:9050\n"
		if err := os.WriteFile(proxyFile, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}

		cfg, err := parseScrapeConfig(t, []string{
			"--proxy", "socks5://127.0.0.1:9050",
			"--proxy-file", proxyFile,
		}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.Proxies) != 3 {
			t.Errorf("got %d proxies, expected 3: %v", len(cfg.Proxies), cfg.Proxies)
		}
	})

	t.Run("missing proxy file errors", func(t *testing.T) {
		t.Parallel()

		_, err := parseScrapeConfig(t, []string{
			"--proxy-file", filepath.Join(t.TempDir(), "missing.txt"),
		}, nil)
		if err == nil {
			t.Error("expected error for missing proxy file")
		}
	})

	t.Run("ignore-robots disables the robots gate", func(t *testing.T) {
		t.Parallel()

		cfg, err := parseScrapeConfig(t, []string{"--ignore-robots"}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.RespectRobots {
			t.Error("expected RespectRobots disabled")
		}
	})

	t.Run("conflicting report formats fail validation", func(t *testing.T) {
		t.Parallel()

		cfg, err := parseScrapeConfig(t, []string{"--json", "--markdown"}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := cfg.Validate(); !errors.Is(err, config.ErrConflictingReportFormats) {
			t.Errorf("got %v, expected ErrConflictingReportFormats", err)
		}
	})

	t.Run("explicit missing config file errors", func(t *testing.T) {
		t.Parallel()

		_, err := parseScrapeConfig(t, []string{
			"--config", filepath.Join(t.TempDir(), "missing.yaml"),
		}, nil)
		if err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("config file site settings are loaded", func(t *testing.T) {
		t.Parallel()

		configFile := filepath.Join(t.TempDir(), "config.yaml")
		content := "sites:\n  www.zapimoveis.com.br:\n    cookie: \"session=abc\"\n"
		if err := os.WriteFile(configFile, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}

		cfg, err := parseScrapeConfig(t, []string{"--config", configFile}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		sc := cfg.SiteConfigs.GetSiteConfig("www.zapimoveis.com.br")
		if sc.Cookie != "session=abc" {
			t.Errorf("got cookie %q", sc.Cookie)
		}
	})
}

// TestSiteConfigFor tests site config resolution from the target host.
func TestSiteConfigFor(t *testing.T) {
	t.Parallel()

	cfg := config.NewConfig()
	cfg.Targets = []string{"https://fixtures.example.com/venda/"}
	cfg.SiteConfigs = &config.File{
		Sites: map[string]config.SiteConfig{
			"fixtures.example.com": {Cookie: "test=1"},
		},
	}

	if got := siteConfigFor(cfg).Cookie; got != "test=1" {
		t.Errorf("got cookie %q, expected host-specific config", got)
	}

	cfg.Targets = []string{"https://www.zapimoveis.com.br/venda/"}
	if got := siteConfigFor(cfg).Cookie; got != "" {
		t.Errorf("got cookie %q, expected empty for unconfigured host", got)
	}
}

// TestSiteHeaders tests header flattening.
func TestSiteHeaders(t *testing.T) {
	t.Parallel()

	headers := siteHeaders(config.SiteConfig{
		Cookie:  "session=abc",
		Headers: map[string]string{"Accept-Language": "pt-BR"},
	})

	if headers["Cookie"] != "session=abc" {
		t.Errorf("got Cookie %q", headers["Cookie"])
	}
	if headers["Accept-Language"] != "pt-BR" {
		t.Errorf("got Accept-Language %q", headers["Accept-Language"])
	}
}
