// Package ws serves streamed chat completions over WebSocket.
//
// Client frames:
//   - chat: {"type":"chat","model":...,"messages":[...]} or the
//     {"type":"chat","message":"..."} shorthand for one user turn
//   - ping: keep-alive
//
// Server frames:
//   - system: sent once after the upgrade
//   - chunk: one emulated stream chunk
//   - complete: finish reason and usage of the completion
//   - error: {kind,message,finish_reason} of a failed completion
//   - pong
//
// Frames are processed in order. A connection runs one completion at a time.
//
// Example Usage:
//
//	handler := ws.NewHandler(gw, ws.Options{Metrics: metrics, Logger: logger})
//	router.GET("/v1/chat/stream", handler.HandleConnection)
package ws
