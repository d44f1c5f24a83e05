package compliance

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// Denial reasons returned by Gate.Allow.
const (
	// ReasonRobots means robots.txt disallows the URL.
	ReasonRobots = "disallowed by robots.txt"

	// ReasonPrivate means the URL looks like a private area (login,
	// account, checkout) whose content is not public data.
	ReasonPrivate = "not public data"
)

// privatePathSegments identify URLs that sit behind authentication or
// handle personal data. The scraper never requests these.
var privatePathSegments = []string{
	"/login", "/signin", "/sign-in", "/cadastro", "/signup",
	"/minha-conta", "/account", "/perfil", "/profile",
	"/checkout", "/pagamento", "/payment",
	"/admin", "/api/",
}

// Gate is the single policy check point before any request. It combines
// the robots.txt rules, the politeness rate limiter, and the public-data
// heuristic.
type Gate struct {
	robots    *RobotsCache
	limiter   *RateLimiter
	userAgent string
	enabled   bool
	logger    *slog.Logger
}

// NewGate creates a compliance gate. When respectRobots is false the
// robots.txt check is skipped; the rate limiter and the public-data
// heuristic always apply.
func NewGate(robots *RobotsCache, limiter *RateLimiter, userAgent string, respectRobots bool, logger *slog.Logger) *Gate {
	return &Gate{
		robots:    robots,
		limiter:   limiter,
		userAgent: userAgent,
		enabled:   respectRobots,
		logger:    logger,
	}
}

// Allow reports whether rawURL may be fetched. When denied, the reason
// explains which policy rejected it.
func (g *Gate) Allow(ctx context.Context, rawURL string) (bool, string, error) {
	if !IsPublicDataURL(rawURL) {
		g.logger.Info("skipping private URL", "url", rawURL)
		return false, ReasonPrivate, nil
	}

	if g.enabled {
		allowed, err := g.robots.Allowed(ctx, rawURL, g.userAgent)
		if err != nil {
			return false, "", err
		}
		if !allowed {
			g.logger.Info("skipping URL disallowed by robots.txt", "url", rawURL)
			return false, ReasonRobots, nil
		}
	}

	return true, "", nil
}

// Wait blocks until the URL's host may be contacted again. It honors a
// robots.txt crawl-delay larger than the configured politeness window.
func (g *Gate) Wait(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}

	if g.enabled {
		if delay := g.robots.CrawlDelay(ctx, rawURL, g.userAgent); delay > g.limiter.minDelay {
			// Honor the larger robots delay for this wait.
			return waitAtLeast(ctx, g.limiter, u.Host, delay)
		}
	}
	return g.limiter.Wait(ctx, u.Host)
}

// waitAtLeast enforces a floor on the limiter's delay for one wait.
func waitAtLeast(ctx context.Context, limiter *RateLimiter, host string, floor time.Duration) error {
	limiter.mu.Lock()
	last, seen := limiter.lastSeen[host]
	now := limiter.now()
	limiter.lastSeen[host] = now
	limiter.mu.Unlock()

	if !seen {
		return nil
	}
	if elapsed := now.Sub(last); elapsed < floor {
		return limiter.sleep(ctx, floor-elapsed)
	}
	return nil
}

// IsPublicDataURL reports whether the URL points at publicly advertised
// content rather than a private area.
func IsPublicDataURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, segment := range privatePathSegments {
		if strings.Contains(path, segment) {
			return false
		}
	}
	return true
}
