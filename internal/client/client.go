package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"

	"zapscraper/internal/config"
	"zapscraper/internal/model"
)

// ErrEmptyURL is returned when Fetch is called with an empty URL.
var ErrEmptyURL = errors.New("empty URL")

// Client is the HTTP client for all portal requests. It keeps a cookie
// jar across requests so the session looks continuous, routes through the
// Cloudflare bypass transport, and presents a rotating browser
// fingerprint.
//
// Design decision: We wrap resty rather than exposing it so that callers
// can only fetch pages; session state, redirect policy, and fingerprint
// rotation stay encapsulated here.
type Client struct {
	http   *resty.Client
	logger *slog.Logger

	mu sync.Mutex
	fp Fingerprint

	// fixedUserAgent pins the User-Agent across rotations when set.
	fixedUserAgent string

	maxBodySize int64
}

// Option configures a Client.
type Option func(*Client)

// WithProxy routes requests through the given proxy URL
// (socks5://host:port or http://host:port).
func WithProxy(proxyURL string) Option {
	return func(c *Client) {
		if proxyURL != "" {
			c.http.SetProxy(proxyURL)
		}
	}
}

// WithAllowedDomains restricts redirects to the given hostnames.
// By default redirects are restricted to the portal's domains; tests pass
// their httptest host here.
func WithAllowedDomains(hosts ...string) Option {
	return func(c *Client) {
		c.http.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(hosts...))
	}
}

// WithHeaders sets additional static headers, e.g. a site-config cookie.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		for k, v := range headers {
			c.http.SetHeader(k, v)
		}
	}
}

// portalDomains are the hosts redirects may land on by default.
var portalDomains = []string{
	"zapimoveis.com.br",
	"www.zapimoveis.com.br",
}

// New creates a Client from the configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	rc := resty.New()

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	rc.SetCookieJar(jar)
	rc.SetTimeout(cfg.Timeout)
	rc.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(portalDomains...))
	rc.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(rc.GetClient().Transport)

	maxBody := cfg.MaxBodySize
	if maxBody <= 0 {
		maxBody = config.DefaultMaxBodySize
	}

	c := &Client{
		http:           rc,
		logger:         logger,
		fixedUserAgent: cfg.UserAgent,
		maxBodySize:    maxBody,
	}
	c.fp = NewFingerprint(cfg.UserAgent)

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RotateFingerprint swaps the client's browser fingerprint. Called after
// a blocked response so the next attempt does not reuse a flagged header
// profile. Fingerprint headers are applied per request in Fetch, so
// rotation never touches state an in-flight request is reading.
func (c *Client) RotateFingerprint() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fp = NewFingerprint(c.fixedUserAgent)
	c.logger.Debug("rotated fingerprint", "fingerprint", c.fp.String())
}

// Fingerprint returns the current fingerprint.
func (c *Client) Fingerprint() Fingerprint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fp
}

// Fetch retrieves a single page. Transport failures return an error;
// HTTP error statuses (including 403/429 blocks) return a page so the
// caller can inspect the status code.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*model.Page, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, ErrEmptyURL
	}

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(c.Fingerprint().Headers()).
		Get(rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	page := &model.Page{
		URL:         resp.Request.URL,
		StatusCode:  resp.StatusCode(),
		Headers:     resp.Header(),
		ContentType: contentType(resp.Header().Get("Content-Type")),
		Raw:         resp.Body(),
	}
	if int64(len(page.Raw)) > c.maxBodySize {
		page.Raw = page.Raw[:c.maxBodySize]
	}
	page.ComputeHash()

	c.logger.Debug("fetched page",
		"url", page.URL,
		"status", page.StatusCode,
		"bytes", len(page.Raw),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return page, nil
}

// contentType strips parameters from a Content-Type header value.
func contentType(v string) string {
	if i := strings.IndexByte(v, ';'); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(strings.ToLower(v))
}
