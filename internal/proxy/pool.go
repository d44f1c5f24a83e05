package proxy

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Rotation strategies.
const (
	// StrategyRoundRobin cycles through proxies in order.
	StrategyRoundRobin = "round-robin"

	// StrategyRandom picks uniformly at random.
	StrategyRandom = "random"

	// StrategyLeastFailures prefers the proxy with the fewest recorded
	// failures, spreading load away from flaky exits.
	StrategyLeastFailures = "least-failures"
)

// Pool bookkeeping defaults.
const (
	// DefaultMaxFailures is how many consecutive failures disable a proxy.
	DefaultMaxFailures = 3

	// DefaultCooldown is how long a disabled proxy sits out before it is
	// eligible again.
	DefaultCooldown = 5 * time.Minute
)

// Pool rotates outbound proxies and tracks their health.
//
// Design decision: The pool hands out proxy URLs rather than dialers or
// clients. The client package owns transport construction; the pool only
// decides which exit to use next. This keeps the two testable in isolation.
type Pool struct {
	mu       sync.Mutex
	proxies  []*Proxy
	strategy string
	next     int

	maxFailures int
	cooldown    time.Duration
	logger      *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithMaxFailures overrides the consecutive-failure limit.
func WithMaxFailures(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.maxFailures = n
		}
	}
}

// WithCooldown overrides the disable duration.
func WithCooldown(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.cooldown = d
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) PoolOption {
	return func(p *Pool) {
		p.now = now
	}
}

// NewPool creates a pool from raw proxy URLs. Invalid URLs are rejected.
// An empty URL list yields a valid pool whose Next always returns
// ErrNoProxies; callers treat that as "connect directly".
func NewPool(rawURLs []string, strategy string, logger *slog.Logger, opts ...PoolOption) (*Pool, error) {
	switch strategy {
	case StrategyRoundRobin, StrategyRandom, StrategyLeastFailures:
	default:
		return nil, ErrUnknownStrategy
	}

	p := &Pool{
		strategy:    strategy,
		maxFailures: DefaultMaxFailures,
		cooldown:    DefaultCooldown,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	for _, raw := range rawURLs {
		normalized, err := ParseProxyURL(raw)
		if err != nil {
			return nil, err
		}
		p.proxies = append(p.proxies, &Proxy{URL: normalized})
	}
	return p, nil
}

// Size returns the total number of proxies, including disabled ones.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}

// Next returns the proxy URL to use for the next request.
// Returns ErrNoProxies when the pool is empty or fully cooling down.
func (p *Pool) Next() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	available := p.availableLocked()
	if len(available) == 0 {
		return "", ErrNoProxies
	}

	var chosen *Proxy
	switch p.strategy {
	case StrategyRandom:
		chosen = available[rand.Intn(len(available))]
	case StrategyLeastFailures:
		chosen = available[0]
		for _, candidate := range available[1:] {
			if candidate.Failures < chosen.Failures {
				chosen = candidate
			}
		}
	default: // round-robin
		// Walk from the cursor to the next available proxy.
		for range p.proxies {
			candidate := p.proxies[p.next%len(p.proxies)]
			p.next++
			if candidate.Available(p.now()) {
				chosen = candidate
				break
			}
		}
	}
	if chosen == nil {
		return "", ErrNoProxies
	}

	chosen.LastUsed = p.now()
	return chosen.URL, nil
}

// MarkSuccess resets the failure count for a proxy after a successful
// request.
func (p *Pool) MarkSuccess(proxyURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if proxy := p.findLocked(proxyURL); proxy != nil {
		proxy.Failures = 0
		proxy.DisabledUntil = time.Time{}
	}
}

// MarkFailure records a failure. After maxFailures consecutive failures
// the proxy is disabled for the cooldown period.
func (p *Pool) MarkFailure(proxyURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	proxy := p.findLocked(proxyURL)
	if proxy == nil {
		return
	}
	proxy.Failures++
	if proxy.Failures >= p.maxFailures {
		proxy.DisabledUntil = p.now().Add(p.cooldown)
		p.logger.Warn("proxy disabled after repeated failures",
			"host", proxy.Host(),
			"failures", proxy.Failures,
			"cooldown", p.cooldown,
		)
	}
}

// Disable takes a proxy out of rotation immediately for the cooldown
// period, regardless of how many failures it has accumulated. The health
// checker uses this for proxies that fail their probe outright.
func (p *Pool) Disable(proxyURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	proxy := p.findLocked(proxyURL)
	if proxy == nil {
		return
	}
	proxy.Failures = p.maxFailures
	proxy.DisabledUntil = p.now().Add(p.cooldown)
	p.logger.Warn("proxy disabled",
		"host", proxy.Host(),
		"cooldown", p.cooldown,
	)
}

// AvailableCount returns how many proxies are currently eligible.
func (p *Pool) AvailableCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.availableLocked())
}

// availableLocked lists proxies not cooling down. Re-admitted proxies get
// their failure count halved so one success does not immediately follow
// another disable.
func (p *Pool) availableLocked() []*Proxy {
	now := p.now()
	var available []*Proxy
	for _, proxy := range p.proxies {
		if !proxy.Available(now) {
			continue
		}
		if !proxy.DisabledUntil.IsZero() {
			// Cooldown expired: re-admit with reduced failure history.
			proxy.DisabledUntil = time.Time{}
			proxy.Failures /= 2
			p.logger.Info("proxy re-admitted after cooldown", "host", proxy.Host())
		}
		available = append(available, proxy)
	}
	return available
}

func (p *Pool) findLocked(proxyURL string) *Proxy {
	for _, proxy := range p.proxies {
		if proxy.URL == proxyURL {
			return proxy
		}
	}
	return nil
}
