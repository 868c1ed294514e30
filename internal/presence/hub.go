// ABOUTME: In-memory registry of connected operator sessions and their subscriptions
// ABOUTME: Tracks heartbeats and prunes sessions that go quiet past the timeout

package presence

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session ID is unknown to the hub,
// typically because it was pruned after missing heartbeats.
var ErrSessionNotFound = errors.New("session not found")

// Session is a point-in-time snapshot of a connected operator session.
type Session struct {
	ID            string
	OperatorID    string
	ConnectedAt   time.Time
	LastSeen      time.Time
	Subscriptions []string
	WatchingList  bool
}

// session is the hub's mutable record. All access goes through the hub mutex.
type session struct {
	id           string
	operatorID   string
	connectedAt  time.Time
	lastSeen     time.Time
	subs         map[string]struct{} // conversation IDs
	watchingList bool
}

func (s *session) snapshot() *Session {
	subs := make([]string, 0, len(s.subs))
	for id := range s.subs {
		subs = append(subs, id)
	}
	return &Session{
		ID:            s.id,
		OperatorID:    s.operatorID,
		ConnectedAt:   s.connectedAt,
		LastSeen:      s.lastSeen,
		Subscriptions: subs,
		WatchingList:  s.watchingList,
	}
}

// Hub tracks which operators are connected and which conversations each
// session is watching. It is the routing table for event fan-out: delivery
// asks the hub who should receive an event, the hub never delivers anything
// itself.
//
// Sessions that miss heartbeats past the timeout are pruned. Pruning removes
// the session and its subscriptions only; any conversation locks the
// operator holds are left to expire on their own so a reconnecting operator
// can pick up where they left off.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*session            // session ID -> session
	byConv   map[string]map[string]struct{} // conversation ID -> session IDs
	timeout  time.Duration
	logger   *slog.Logger
	done     chan struct{}
	closed   bool
}

// NewHub creates a hub that prunes sessions quiet for longer than timeout.
// Pass nil logger for default.
func NewHub(timeout time.Duration, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		sessions: make(map[string]*session),
		byConv:   make(map[string]map[string]struct{}),
		timeout:  timeout,
		logger:   logger.With("component", "presence"),
		done:     make(chan struct{}),
	}
	go h.pruneLoop()
	return h
}

// Connect registers a new session for the operator and returns its snapshot.
// An operator may hold multiple sessions (e.g. two browser tabs).
func (h *Hub) Connect(operatorID string) *Session {
	now := time.Now()
	s := &session{
		id:          uuid.New().String(),
		operatorID:  operatorID,
		connectedAt: now,
		lastSeen:    now,
		subs:        make(map[string]struct{}),
	}

	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()

	h.logger.Debug("session connected",
		"session_id", s.id,
		"operator_id", operatorID)
	return s.snapshot()
}

// Disconnect removes a session and all its subscriptions. It does not touch
// any conversation locks the operator holds.
func (h *Hub) Disconnect(sessionID string) {
	h.mu.Lock()
	h.removeLocked(sessionID)
	h.mu.Unlock()
}

// Subscribe adds the conversation to the session's watch set.
func (h *Hub) Subscribe(sessionID, conversationID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.subs[conversationID] = struct{}{}

	if _, ok := h.byConv[conversationID]; !ok {
		h.byConv[conversationID] = make(map[string]struct{})
	}
	h.byConv[conversationID][sessionID] = struct{}{}
	return nil
}

// Unsubscribe removes the conversation from the session's watch set.
func (h *Hub) Unsubscribe(sessionID, conversationID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	delete(s.subs, conversationID)
	h.dropConvIndexLocked(conversationID, sessionID)
	return nil
}

// WatchList marks whether the session is viewing the conversation list.
// List watchers receive status-change and summary events for every
// conversation, not just subscribed ones.
func (h *Hub) WatchList(sessionID string, watching bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.watchingList = watching
	return nil
}

// Touch records a heartbeat for the session, deferring its pruning.
func (h *Hub) Touch(sessionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.lastSeen = time.Now()
	return nil
}

// SessionsFor returns snapshots of every session subscribed to the
// conversation.
func (h *Hub) SessionsFor(conversationID string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids, ok := h.byConv[conversationID]
	if !ok {
		return nil
	}
	out := make([]*Session, 0, len(ids))
	for id := range ids {
		if s, ok := h.sessions[id]; ok {
			out = append(out, s.snapshot())
		}
	}
	return out
}

// ListWatchers returns snapshots of every session watching the
// conversation list.
func (h *Hub) ListWatchers() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*Session
	for _, s := range h.sessions {
		if s.watchingList {
			out = append(out, s.snapshot())
		}
	}
	return out
}

// OperatorSessions returns snapshots of the operator's live sessions.
func (h *Hub) OperatorSessions(operatorID string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*Session
	for _, s := range h.sessions {
		if s.operatorID == operatorID {
			out = append(out, s.snapshot())
		}
	}
	return out
}

// Sessions returns snapshots of every live session.
func (h *Hub) Sessions() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s.snapshot())
	}
	return out
}

// Online reports whether the operator has at least one live session.
func (h *Hub) Online(operatorID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.sessions {
		if s.operatorID == operatorID {
			return true
		}
	}
	return false
}

// Close stops the prune loop. Safe to call multiple times.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
}

// removeLocked deletes the session and unwinds its subscription index.
// Must be called with mu held.
func (h *Hub) removeLocked(sessionID string) {
	s, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	for convID := range s.subs {
		h.dropConvIndexLocked(convID, sessionID)
	}
	delete(h.sessions, sessionID)

	h.logger.Debug("session removed",
		"session_id", sessionID,
		"operator_id", s.operatorID)
}

// dropConvIndexLocked removes a session from a conversation's index entry,
// deleting the entry when it empties. Must be called with mu held.
func (h *Hub) dropConvIndexLocked(conversationID, sessionID string) {
	ids, ok := h.byConv[conversationID]
	if !ok {
		return
	}
	delete(ids, sessionID)
	if len(ids) == 0 {
		delete(h.byConv, conversationID)
	}
}

// pruneLoop periodically removes sessions whose last heartbeat is older
// than the timeout.
func (h *Hub) pruneLoop() {
	interval := h.timeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.prune()
		case <-h.done:
			return
		}
	}
}

// prune removes every session quiet for longer than the timeout.
func (h *Hub) prune() {
	cutoff := time.Now().Add(-h.timeout)

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, s := range h.sessions {
		if s.lastSeen.Before(cutoff) {
			h.logger.Info("pruning stale session",
				"session_id", id,
				"operator_id", s.operatorID,
				"last_seen", s.lastSeen)
			h.removeLocked(id)
		}
	}
}
