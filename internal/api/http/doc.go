// Package http provides the OpenAI-compatible HTTP surface of the gateway.
//
// Routes:
//   - GET  /                     service banner
//   - GET  /health               readiness, always 200
//   - GET  /stats                pool statistics and request counters
//   - GET  /v1/models            model catalog
//   - GET  /v1/models/:id        one catalog entry
//   - POST /v1/chat/completions  buffered JSON or SSE when "stream" is true
//   - POST /chat                 {message, model} convenience form
//
// Failures are rendered as {"error":{"kind":...,"message":...,"finish_reason":...}} with the
// status from StatusFor. Exhausted and unavailable responses carry
// Retry-After.
//
// Example Usage:
//
//	handlers := http.NewHandlers(gw, http.Options{Version: version, Logger: logger})
//	router.POST("/v1/chat/completions", handlers.ChatCompletions)
package http
