// ABOUTME: Package doc for operator presence tracking
// ABOUTME: Explains the session/subscription model and the prune policy

// Package presence tracks connected operator sessions.
//
// Each WebSocket connection registers a session with the Hub. Sessions carry
// a watch set of conversation IDs plus an optional list-view flag, and must
// heartbeat periodically or be pruned. The hub is purely a routing table:
// delivery components query it to decide which sessions receive an event.
//
// Pruning a session never releases conversation locks. Ownership is governed
// by lock TTLs alone, so a briefly disconnected operator keeps their
// conversations until the lock expires.
package presence
