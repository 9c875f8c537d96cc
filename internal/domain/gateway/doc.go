// Package gateway is the chat completion facade over the session pool and
// the translator. Each request moves through
//
//	received -> acquiring -> interacting -> completed | timed_out | failed
//
// and every failure surfaces as a *chat.Error with a stable kind.
package gateway
