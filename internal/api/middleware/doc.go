// Package middleware provides the gin middleware stack for the chat gateway.
//
// Middleware stack includes:
//   - RequestID: accepts or generates X-Request-ID, echoes it and seeds a
//     request-scoped zap logger
//   - Recovery / AccessLog: panic recovery and one log line per request
//   - CORS: cross-origin access for browser clients
//   - RateLimit: per-IP token bucket with idle eviction and Retry-After
//   - APIKeyAuth: bearer keys, plain or bcrypt hashed; disabled when empty
//
// Rejections use the same {error:{kind,message,finish_reason}} envelope as the gateway.
//
// Example Usage:
//
//	router.Use(middleware.RequestID(logger), middleware.Recovery(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	v1 := router.Group("/v1", middleware.APIKeyAuth(middleware.NewKeySet(keys)))
package middleware
