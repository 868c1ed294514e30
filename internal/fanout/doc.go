// ABOUTME: Package doc for operator event fan-out
// ABOUTME: Explains queue bounds and the drop-oldest overflow policy

// Package fanout delivers conversation events to connected operator sessions.
//
// Each session gets a bounded queue. When a queue overflows, the oldest
// undelivered event is discarded, never the newest: a session that falls
// behind converges on current state instead of replaying stale history.
// Delivery is best-effort; the registry remains the source of truth and a
// reconnecting session refetches whatever it missed.
package fanout
