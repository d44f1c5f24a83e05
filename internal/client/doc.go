// Package client provides the hardened HTTP client used for all portal
// requests. It layers a cookie jar, a Cloudflare bypass transport, and a
// rotating browser fingerprint on top of resty so that request traffic
// resembles a regular Brazilian desktop browser session.
package client
