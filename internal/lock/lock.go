// ABOUTME: Lock store contract for exclusive conversation ownership
// ABOUTME: Defines atomic acquire/renew/release semantics shared by all backends

package lock

import (
	"context"
	"errors"
	"time"
)

// ErrLost is returned by Renew when the lock has expired or is now held by
// someone else. The caller must treat its ownership as gone.
var ErrLost = errors.New("lock lost")

// ErrNotOwner is returned by Release when the caller does not hold the lock.
// Releasing a lock you don't own is never silently ignored.
var ErrNotOwner = errors.New("not lock owner")

// Acquisition is the outcome of an Acquire call. When Granted is false,
// Owner identifies the operator currently holding the lock.
type Acquisition struct {
	Granted bool
	Owner   string
}

// Store is the mutual-exclusion primitive for conversation ownership.
// All contenders go through Acquire; implementations must provide atomic
// check-and-set semantics so two concurrent acquires for the same
// conversation never both succeed. Entries expire after their TTL unless
// renewed, which is how crashed or disconnected operators lose ownership
// without manual cleanup.
type Store interface {
	// Acquire takes the lock for operatorID if it is free, expired, or
	// already held by the same operator (in which case the TTL is refreshed).
	Acquire(ctx context.Context, conversationID, operatorID string, ttl time.Duration) (*Acquisition, error)

	// Renew extends a held lock. Returns ErrLost if the lock expired or
	// changed hands since it was acquired.
	Renew(ctx context.Context, conversationID, operatorID string, ttl time.Duration) error

	// Release frees a held lock. Returns ErrNotOwner if operatorID does
	// not currently hold it.
	Release(ctx context.Context, conversationID, operatorID string) error

	// Owner reports the current holder of the lock, or "" if unheld.
	Owner(ctx context.Context, conversationID string) (string, error)

	// Close releases any resources held by the store.
	Close() error
}
