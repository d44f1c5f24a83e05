// Package proxy manages the pool of outbound proxies the scraper rotates
// through. The pool tracks per-proxy failure counts, removes proxies that
// fail repeatedly, re-admits them after a cooldown, and supports
// round-robin, random, and least-failures selection strategies.
package proxy
