// Package client is the outbound HTTP client used to drive the target site.
//
// Built on go-resty/resty with the pooled transport from
// hashicorp/go-retryablehttp:
//   - Idempotent requests retry on network errors, 429 and 5xx
//   - Optional per-client rate limiting
//   - A circuit breaker, usually shared by every session of one site
//   - A cookie jar per client so each session keeps its own site state
//
// Example Usage:
//
//	c := client.New(client.Config{BaseURL: "https://example.com", Breaker: breaker})
//	resp, err := c.Execute(ctx, func(r *resty.Request) (*resty.Response, error) {
//		return r.Get("/")
//	})
package client
