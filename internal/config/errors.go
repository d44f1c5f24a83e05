package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoTarget is returned when no target URL is specified and
	// deep-only mode is off.
	ErrNoTarget = errors.New("no target specified: provide a search or listing URL")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	// A timeout of zero or negative would cause immediate request failures.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidConcurrency is returned when max concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidRetries is returned when the retry count is negative.
	// Use 0 to disable retries.
	ErrInvalidRetries = errors.New("invalid retries: must be non-negative")

	// ErrInvalidBackoff is returned when the retry backoff multiplier is
	// below 1.0, which would shrink delays on each attempt.
	ErrInvalidBackoff = errors.New("invalid retry backoff: must be at least 1.0")

	// ErrInvalidDelayWindow is returned when the politeness delay window
	// is negative or inverted (max below min).
	ErrInvalidDelayWindow = errors.New("invalid delay window: min must be non-negative and max >= min")

	// ErrConflictingReportFormats is returned when both --json and
	// --markdown are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrUnknownProxyStrategy is returned for an unrecognized
	// --proxy-strategy value.
	ErrUnknownProxyStrategy = errors.New("unknown proxy strategy: use round-robin, random, or least-failures")

	// ErrInvalidMaxImages is returned when the per-listing image cap is
	// negative. Use 0 to disable image downloads.
	ErrInvalidMaxImages = errors.New("invalid max images: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// A negative body size is invalid; use 0 to use the default limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")
)
