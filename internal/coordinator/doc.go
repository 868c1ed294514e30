// ABOUTME: Package doc for the assignment coordinator
// ABOUTME: Describes the lock-first ownership rule and message flows

// Package coordinator drives conversation assignment and messaging.
//
// Ownership is lock-first: an operator must hold the conversation's lock
// before the registry row moves to processing, and every owner-only action
// re-checks the lock at the moment it runs. The registry's optimistic status
// checks back this up, so even a caller bypassing the lock cannot corrupt
// the state machine.
//
// Inbound messages are idempotent per message ID and reopen finished
// conversations. Outbound messages are stored before delivery, so provider
// failures surface as failed sends rather than silent loss.
package coordinator
