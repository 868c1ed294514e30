// Package store provides the conversation registry: the authoritative,
// persisted record of conversation status, assignment, and activity
// counters.
//
// # Data Model
//
// Conversations hold the coordination state the console needs — status,
// assigned operator, unread counters, and a preview of the most recent
// message. Message payloads live with the messaging provider; the registry
// only records each message's idempotency key (processed_messages) and the
// summary fields derived from it.
//
// Outbound sends are tracked separately in outbound_messages with an
// explicit pending/sent/failed state, so "stored internally" is never
// conflated with "delivered externally".
//
// # Concurrency
//
// Status transitions use an optimistic check (UPDATE ... WHERE status IN
// expected); a write that finds unexpected state returns ErrStatusConflict
// instead of clobbering a concurrent transition. ApplyMessage runs the
// idempotency insert and counter update in one transaction, so a replayed
// message ID never double-increments unread_count.
//
// # Implementations
//
// SQLiteStore is the production implementation (modernc.org/sqlite, WAL
// mode, schema auto-created). MockStore mirrors the full contract in
// memory for tests.
package store
