// ABOUTME: Tests for the in-process lock store
// ABOUTME: Covers acquire/renew/release semantics, expiry, and concurrent contention

package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_AcquireFreeLock(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	acq, err := s.Acquire(ctx, "conv-1", "op-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, acq.Granted)

	owner, err := s.Owner(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "op-a", owner)
}

func TestMemoryStore_AcquireHeldLockIsDenied(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Acquire(ctx, "conv-1", "op-a", time.Minute)
	require.NoError(t, err)

	acq, err := s.Acquire(ctx, "conv-1", "op-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, acq.Granted)
	assert.Equal(t, "op-a", acq.Owner)
}

func TestMemoryStore_ReacquireBySameOwnerRefreshes(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Acquire(ctx, "conv-1", "op-a", 50*time.Millisecond)
	require.NoError(t, err)

	acq, err := s.Acquire(ctx, "conv-1", "op-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, acq.Granted)

	// The refreshed TTL must outlive the original 50ms
	time.Sleep(80 * time.Millisecond)
	owner, err := s.Owner(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "op-a", owner)
}

func TestMemoryStore_ExpiredLockIsReacquirable(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Acquire(ctx, "conv-1", "op-a", 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	acq, err := s.Acquire(ctx, "conv-1", "op-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, acq.Granted)

	owner, err := s.Owner(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "op-b", owner)
}

func TestMemoryStore_RenewExtendsHeldLock(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Acquire(ctx, "conv-1", "op-a", 50*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, s.Renew(ctx, "conv-1", "op-a", time.Minute))

	time.Sleep(80 * time.Millisecond)
	owner, err := s.Owner(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "op-a", owner)
}

func TestMemoryStore_RenewByNonOwnerIsLost(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Acquire(ctx, "conv-1", "op-a", time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Renew(ctx, "conv-1", "op-b", time.Minute), ErrLost)
}

func TestMemoryStore_RenewAfterExpiryIsLost(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Acquire(ctx, "conv-1", "op-a", 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	assert.ErrorIs(t, s.Renew(ctx, "conv-1", "op-a", time.Minute), ErrLost)
}

func TestMemoryStore_ReleaseByOwner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Acquire(ctx, "conv-1", "op-a", time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.Release(ctx, "conv-1", "op-a"))

	owner, err := s.Owner(ctx, "conv-1")
	require.NoError(t, err)
	assert.Empty(t, owner)
}

func TestMemoryStore_ReleaseByNonOwnerReported(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Acquire(ctx, "conv-1", "op-a", time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Release(ctx, "conv-1", "op-b"), ErrNotOwner)

	// Lock must still be held by the real owner
	owner, err := s.Owner(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "op-a", owner)
}

func TestMemoryStore_ReleaseUnheldLockReported(t *testing.T) {
	s := NewMemoryStore()
	assert.ErrorIs(t, s.Release(context.Background(), "conv-1", "op-a"), ErrNotOwner)
}

func TestMemoryStore_ConcurrentAcquireGrantsExactlyOne(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const contenders = 50

	var wg sync.WaitGroup
	granted := make(chan string, contenders)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			op := string(rune('A' + n%26))
			acq, err := s.Acquire(ctx, "conv-hot", "op-"+op+string(rune('0'+n/26)), time.Minute)
			if !assert.NoError(t, err) {
				return
			}
			if acq.Granted {
				granted <- op
			}
		}(i)
	}

	wg.Wait()
	close(granted)

	count := 0
	for range granted {
		count++
	}
	assert.Equal(t, 1, count, "exactly one contender must win the lock")
}

func TestMemoryStore_LocksAreIndependentPerConversation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	acq1, err := s.Acquire(ctx, "conv-1", "op-a", time.Minute)
	require.NoError(t, err)
	acq2, err := s.Acquire(ctx, "conv-2", "op-b", time.Minute)
	require.NoError(t, err)

	assert.True(t, acq1.Granted)
	assert.True(t, acq2.Granted)
}
