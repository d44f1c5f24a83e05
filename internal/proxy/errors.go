package proxy

import "errors"

// Pool errors.
var (
	// ErrNoProxies is returned when the pool is empty or every proxy is
	// cooling down.
	ErrNoProxies = errors.New("no proxies available")

	// ErrInvalidProxyURL is returned for a proxy URL that cannot be
	// parsed or uses an unsupported scheme.
	ErrInvalidProxyURL = errors.New("invalid proxy URL")

	// ErrUnknownStrategy is returned for an unrecognized rotation
	// strategy name.
	ErrUnknownStrategy = errors.New("unknown rotation strategy")
)
