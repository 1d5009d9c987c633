// Package proxy serves branch previews through the sandbox pool.
//
// Requests under the mount prefix name the sandbox in their first two path
// segments:
//
//	/preview/{owner}/{branch}/{rest}
//
// For each request the proxy asks the pool for the sandbox (spawning it on
// a miss and marking it used on a hit), then forwards the request with the
// path reduced to /{rest} to the dev server on 127.0.0.1:{port}. Upstream
// sees the stripped prefix in X-Forwarded-Prefix.
//
// # Failure responses
//
//   - 400 for malformed owner or branch identifiers
//   - 429 when the per-sandbox rate limit is exceeded
//   - 503 when the port range is exhausted
//   - 504 when the dev server never became ready
//   - 502 when the dev server could not be spawned or stopped answering
//
// # Configuration
//
//	p, err := proxy.New(&proxy.Config{
//	    Pool:              manager,
//	    RateLimitRequests: 600,
//	    RateLimitWindow:   time.Minute,
//	})
package proxy
