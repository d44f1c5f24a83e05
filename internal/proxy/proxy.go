package proxy

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Proxy is a single outbound proxy with its health bookkeeping.
type Proxy struct {
	// URL is the proxy address, e.g. "socks5://10.0.0.1:1080" or
	// "http://10.0.0.1:8080". Credentials may be embedded as userinfo.
	URL string

	// Failures counts consecutive failures since the last success.
	Failures int

	// DisabledUntil is non-zero while the proxy is cooling down after
	// exceeding the failure limit.
	DisabledUntil time.Time

	// LastUsed is when the proxy last carried a request.
	LastUsed time.Time
}

// Available reports whether the proxy may carry requests at time now.
func (p *Proxy) Available(now time.Time) bool {
	return p.DisabledUntil.IsZero() || now.After(p.DisabledUntil)
}

// Host returns the host:port of the proxy for logging. Credentials are
// never included.
func (p *Proxy) Host() string {
	u, err := url.Parse(p.URL)
	if err != nil {
		return p.URL
	}
	return u.Host
}

// ParseProxyURL validates a proxy URL and normalizes scheme-less entries
// to http://. Supported schemes are http, https, socks5, and socks5h.
func ParseProxyURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidProxyURL)
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidProxyURL, err)
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidProxyURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidProxyURL)
	}
	return u.String(), nil
}
