package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Page represents a fetched web page before extraction.
// It holds the raw response bytes alongside response metadata.
//
// Design decision: We keep raw bytes on the page rather than a parsed
// document because:
//  1. The extract package owns parsing; fetch and parse stay decoupled
//  2. Raw bytes allow body hashing for change detection between runs
//  3. Image responses flow through the same type as HTML responses
type Page struct {
	// URL is the final URL of the page after redirects.
	URL string `json:"url"`

	// StatusCode is the HTTP response status code.
	StatusCode int `json:"status_code"`

	// Headers contains all HTTP response headers.
	Headers map[string][]string `json:"headers,omitempty"`

	// ContentType is the MIME type of the response, without parameters.
	ContentType string `json:"content_type"`

	// Title is the page title extracted from the <title> tag.
	// Empty for non-HTML content.
	Title string `json:"title,omitempty"`

	// Raw contains the raw response body bytes, truncated to MaxPageSize.
	Raw []byte `json:"-"` // Excluded from JSON to reduce report size

	// Hash is the SHA-256 hash of the raw content.
	// Used for change detection between scrape runs.
	Hash string `json:"hash,omitempty"`
}

// MaxPageSize is the maximum size of raw page content to store.
// Larger pages are truncated to this size.
const MaxPageSize = 5 * 1024 * 1024 // 5 MB

// ComputeHash calculates and sets the SHA-256 hash of the page's raw content.
// This should be called after setting the Raw field.
func (p *Page) ComputeHash() {
	if len(p.Raw) == 0 {
		p.Hash = ""
		return
	}

	hash := sha256.Sum256(p.Raw)
	p.Hash = hex.EncodeToString(hash[:])
}

// GetHeader returns the first value of the specified header.
// Returns empty string if the header is not present.
func (p *Page) GetHeader(name string) string {
	if values, ok := p.Headers[name]; ok && len(values) > 0 {
		return values[0]
	}
	return ""
}

// IsHTML returns true if the page content type indicates HTML.
func (p *Page) IsHTML() bool {
	return strings.HasPrefix(p.ContentType, "text/html") ||
		strings.HasPrefix(p.ContentType, "application/xhtml+xml")
}

// IsImage returns true if the page content type indicates an image.
func (p *Page) IsImage() bool {
	return strings.HasPrefix(p.ContentType, "image/")
}

// IsBlocked reports whether the response status indicates anti-bot
// blocking. The portal answers 403 or 429 when it throttles a client.
func (p *Page) IsBlocked() bool {
	return p.StatusCode == 403 || p.StatusCode == 429
}

// TruncateRaw ensures the raw content doesn't exceed MaxPageSize.
// Call this after setting Raw to enforce the size limit.
func (p *Page) TruncateRaw() {
	if len(p.Raw) > MaxPageSize {
		p.Raw = p.Raw[:MaxPageSize]
	}
}
