// Package cache provides the redis-backed reply cache used by the gateway
// for identical non-streaming prompts.
package cache
