package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	netproxy "golang.org/x/net/proxy"
)

// Checker verifies that proxies can actually reach the outside world
// before the pool hands them to the scraper. SOCKS5 proxies are dialed
// through golang.org/x/net/proxy; HTTP proxies go through a one-shot
// http.Transport.
type Checker struct {
	testURL string
	timeout time.Duration
}

// NewChecker creates a Checker that probes testURL through each proxy.
// The test URL should be a small, fast page; the portal's robots.txt
// works well because each proxy will need to fetch it anyway.
func NewChecker(testURL string, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Checker{testURL: testURL, timeout: timeout}
}

// Check probes a single proxy URL. A nil error means the proxy carried
// an HTTP request end to end.
func (c *Checker) Check(ctx context.Context, proxyURL string) error {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProxyURL, err)
	}

	var transport *http.Transport
	switch u.Scheme {
	case "socks5", "socks5h":
		var auth *netproxy.Auth
		if u.User != nil {
			password, _ := u.User.Password()
			auth = &netproxy.Auth{User: u.User.Username(), Password: password}
		}
		dialer, err := netproxy.SOCKS5("tcp", u.Host, auth, netproxy.Direct)
		if err != nil {
			return fmt.Errorf("create SOCKS dialer: %w", err)
		}
		transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				if cd, ok := dialer.(netproxy.ContextDialer); ok {
					return cd.DialContext(ctx, network, addr)
				}
				return dialer.Dial(network, addr)
			},
			DisableKeepAlives: true,
		}
	default:
		transport = &http.Transport{
			Proxy:             http.ProxyURL(u),
			DisableKeepAlives: true,
		}
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse // Don't follow redirects
		},
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.testURL, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return nil
	}
	return fmt.Errorf("proxy probe returned HTTP %d", resp.StatusCode)
}

// Prune checks every proxy in the pool and disables the ones that cannot
// carry traffic, so Next never hands them out. Returns the number of
// working proxies.
func (c *Checker) Prune(ctx context.Context, pool *Pool) int {
	working := 0
	checked := make(map[string]bool)
	for i := 0; i < pool.Size(); i++ {
		proxyURL, err := pool.Next()
		if err != nil {
			break
		}
		if checked[proxyURL] {
			continue
		}
		checked[proxyURL] = true

		if err := c.Check(ctx, proxyURL); err != nil {
			pool.Disable(proxyURL)
			continue
		}
		pool.MarkSuccess(proxyURL)
		working++
	}
	return working
}
