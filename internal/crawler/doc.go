// Package crawler walks paginated search results. The Paginator follows
// next-page links sequentially, de-duplicating visited pages and handing
// each page's listings to a callback so results are persisted as they
// arrive rather than at the end of the walk.
package crawler
