// ABOUTME: Tests for the recent-message dedupe window
// ABOUTME: Covers first-seen semantics, expiry via rotation, and the size cap

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindow_FirstSeenThenDuplicate(t *testing.T) {
	w := NewWindow(time.Minute, 100)

	assert.False(t, w.Seen("msg-1"))
	assert.True(t, w.Seen("msg-1"))
	assert.False(t, w.Seen("msg-2"))
}

func TestWindow_KeySurvivesOneRotation(t *testing.T) {
	w := NewWindow(time.Minute, 100)

	clock := time.Now()
	w.now = func() time.Time { return clock }
	w.rotated = clock

	assert.False(t, w.Seen("msg-1"))

	clock = clock.Add(61 * time.Second)
	assert.True(t, w.Seen("msg-1"))
}

func TestWindow_KeyExpiresWithoutRefresh(t *testing.T) {
	w := NewWindow(time.Minute, 100)

	clock := time.Now()
	w.now = func() time.Time { return clock }
	w.rotated = clock

	assert.False(t, w.Seen("msg-1"))

	// Two rotations with no access to msg-1 in between drop it entirely
	clock = clock.Add(61 * time.Second)
	assert.False(t, w.Seen("other-1"))
	clock = clock.Add(61 * time.Second)
	assert.False(t, w.Seen("other-2"))

	assert.False(t, w.Seen("msg-1"))
}

func TestWindow_ForgetUnmarksKey(t *testing.T) {
	w := NewWindow(time.Minute, 100)

	assert.False(t, w.Seen("msg-1"))
	w.Forget("msg-1")
	assert.False(t, w.Seen("msg-1"))
	assert.True(t, w.Seen("msg-1"))
}

func TestWindow_ForgetReachesOlderGeneration(t *testing.T) {
	w := NewWindow(time.Minute, 100)

	clock := time.Now()
	w.now = func() time.Time { return clock }
	w.rotated = clock

	assert.False(t, w.Seen("msg-1"))

	// Rotate msg-1 into the older generation, then forget it
	clock = clock.Add(61 * time.Second)
	assert.False(t, w.Seen("other"))
	w.Forget("msg-1")

	assert.False(t, w.Seen("msg-1"))
}

func TestWindow_SizeCapForcesRotation(t *testing.T) {
	w := NewWindow(time.Hour, 10)

	for i := 0; i < 10; i++ {
		assert.False(t, w.Seen(fmt.Sprintf("msg-%d", i)))
	}

	// The cap makes the next access rotate instead of growing
	assert.False(t, w.Seen("msg-10"))
	assert.LessOrEqual(t, w.Len(), 11)

	// Keys from the rotated-out generation are still within the window
	assert.True(t, w.Seen("msg-3"))
}

func TestWindow_ConcurrentSeenAgreesOnFirst(t *testing.T) {
	w := NewWindow(time.Minute, 1000)

	const workers = 32
	var firsts int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !w.Seen("contested") {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, firsts)
}
