// Package compliance gates every outbound request behind the site's
// robots.txt rules, a per-host politeness rate limiter, and a public-data
// heuristic that refuses URLs behind authentication or checkout flows.
//
// The scraper only collects publicly advertised listing data. The gate is
// the single place where that policy is enforced: the pipeline asks
// Allow before fetching and Wait before each request to the same host.
package compliance
