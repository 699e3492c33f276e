// Package catalog talks to the product catalog API. The client owns its
// token session: it authenticates with the configured key and secret, caches
// the short-lived token, and refreshes it once when the server rejects it.
// Search responses are cached briefly per query and outbound calls are spaced
// to respect the upstream rate limit.
package catalog
