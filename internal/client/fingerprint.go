package client

import (
	"fmt"
	"math/rand"
	"sync"

	browser "github.com/EDDYCJY/fake-useragent"
)

// Fingerprint is the set of identifying request headers sent with every
// request. Rotating the whole set at once keeps the headers mutually
// consistent; rotating only the User-Agent is a known bot signal.
type Fingerprint struct {
	// UserAgent is the browser identification string.
	UserAgent string

	// AcceptLanguage advertises the language preference. The portal
	// serves Brazilian Portuguese users, so pt-BR leads.
	AcceptLanguage string

	// Accept is the content negotiation header for document requests.
	Accept string

	// SecFetchSite and friends mimic the fetch metadata a browser sends
	// on top-level navigations.
	SecFetchSite string
	SecFetchMode string
	SecFetchDest string
}

// fallbackUserAgents is used when the user-agent database is unavailable,
// e.g. in offline test runs.
var fallbackUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:124.0) Gecko/20100101 Firefox/124.0",
}

// acceptLanguages are plausible Accept-Language values for a Brazilian
// visitor, rotated with the rest of the fingerprint.
var acceptLanguages = []string{
	"pt-BR,pt;q=0.9,en-US;q=0.6,en;q=0.4",
	"pt-BR,pt;q=0.9,en;q=0.5",
	"pt-BR;q=1.0,en-US;q=0.7",
}

// uaMu guards the lazily-populated user-agent source. fake-useragent
// caches its database internally but the first call is not safe to race.
var uaMu sync.Mutex

// randomUserAgent returns a desktop browser user agent. Falls back to a
// built-in list when the user-agent database cannot be loaded.
func randomUserAgent() (ua string) {
	uaMu.Lock()
	defer uaMu.Unlock()

	defer func() {
		// fake-useragent panics if its cache download fails; the
		// fallback list covers that case.
		if recover() != nil || ua == "" {
			ua = fallbackUserAgents[rand.Intn(len(fallbackUserAgents))]
		}
	}()

	ua = browser.Computer()
	return ua
}

// NewFingerprint builds a randomized fingerprint. When fixedUserAgent is
// non-empty it is used verbatim, which keeps a run identifiable in server
// logs when operators prefer that.
func NewFingerprint(fixedUserAgent string) Fingerprint {
	ua := fixedUserAgent
	if ua == "" {
		ua = randomUserAgent()
	}
	return Fingerprint{
		UserAgent:      ua,
		AcceptLanguage: acceptLanguages[rand.Intn(len(acceptLanguages))],
		Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		SecFetchSite:   "none",
		SecFetchMode:   "navigate",
		SecFetchDest:   "document",
	}
}

// Headers returns the fingerprint as a header map ready for resty.
func (f Fingerprint) Headers() map[string]string {
	return map[string]string{
		"User-Agent":      f.UserAgent,
		"Accept":          f.Accept,
		"Accept-Language": f.AcceptLanguage,
		"Sec-Fetch-Site":  f.SecFetchSite,
		"Sec-Fetch-Mode":  f.SecFetchMode,
		"Sec-Fetch-Dest":  f.SecFetchDest,
	}
}

// String describes the fingerprint for logging without dumping every header.
func (f Fingerprint) String() string {
	return fmt.Sprintf("ua=%q lang=%q", f.UserAgent, f.AcceptLanguage)
}
