// Package main is the entry point for the chat gateway.
//
// The gateway exposes an OpenAI-compatible API and answers it by driving a
// public chat web site through a small pool of browser sessions.
//
// Commands:
//   - serve (default): run the HTTP API and the gRPC health service
//   - models: list the model catalog of the configured site profile
//   - version: print the build version
//
// Configuration comes from environment variables (PORT, POOL_MAX_SESSIONS,
// REQUEST_TIMEOUT, SITE_PROFILE, API_KEYS, ...). SITE_PROFILE may point at a
// YAML or TOML profile describing another site.
//
// Usage:
//
//	PORT=8000 API_KEYS=secret chatgate serve
//	chatgate models --json
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
