// ABOUTME: In-memory recent-message window for short-circuiting replayed deliveries
// ABOUTME: Sits in front of the registry's durable processed-message check

package dedupe

import (
	"sync"
	"time"
)

// Window tracks recently seen message IDs over a rolling time window. It
// keeps two generations of keys and rotates them as time passes, so a key
// stays visible for at least the window duration and at most twice it.
// Rotation happens lazily on access; there is no background goroutine.
//
// The window is a fast-path filter only. Callers that need a durable
// idempotence guarantee must still rely on the registry, which records
// every processed message ID.
type Window struct {
	mu      sync.Mutex
	span    time.Duration
	maxKeys int
	current map[string]struct{}
	older   map[string]struct{}
	rotated time.Time
	now     func() time.Time
}

// NewWindow creates a window that remembers keys for at least span.
// maxKeys bounds each generation; when the current generation fills up,
// the window rotates early rather than grow without limit.
func NewWindow(span time.Duration, maxKeys int) *Window {
	return &Window{
		span:    span,
		maxKeys: maxKeys,
		current: make(map[string]struct{}),
		older:   make(map[string]struct{}),
		rotated: time.Now(),
		now:     time.Now,
	}
}

// Seen reports whether key was observed within the window, marking it as
// observed either way. The check and mark are atomic under the window's
// lock, so concurrent callers for the same key agree on exactly one first
// observation.
func (w *Window) Seen(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.maybeRotateLocked()

	if _, ok := w.current[key]; ok {
		return true
	}
	if _, ok := w.older[key]; ok {
		// Refresh into the current generation so the key survives the
		// next rotation
		w.current[key] = struct{}{}
		return true
	}

	w.current[key] = struct{}{}
	return false
}

// Forget removes key so a later Seen reports it unseen again. Callers use
// this to roll back a mark when the work the observation guarded did not
// complete, typically so a redelivery of the same message is not dropped.
func (w *Window) Forget(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.current, key)
	delete(w.older, key)
}

// Len returns the number of keys currently tracked across both generations.
// Keys refreshed from the older generation are counted once per generation
// they appear in, so Len is an upper bound on distinct keys.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.current) + len(w.older)
}

// maybeRotateLocked ages out the older generation when the window span has
// elapsed or the current generation hit its size cap. Must be called with
// mu held.
func (w *Window) maybeRotateLocked() {
	if w.now().Sub(w.rotated) < w.span && len(w.current) < w.maxKeys {
		return
	}
	w.older = w.current
	w.current = make(map[string]struct{})
	w.rotated = w.now()
}
