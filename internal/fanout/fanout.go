// ABOUTME: Event fan-out to connected operator sessions with bounded queues
// ABOUTME: Routes via the presence hub; slow consumers lose their oldest events first

package fanout

import (
	"log/slog"
	"sync"
	"time"

	"github.com/opdesk/supportd/internal/presence"
	"github.com/opdesk/supportd/internal/store"
)

// Event types delivered to operator sessions.
const (
	EventNewMessage       = "new_message"
	EventStatusChanged    = "status_changed"
	EventAssignmentFailed = "assignment_failed"
	EventSendFailed       = "send_failed"
)

// Event is a single unit of delivery to an operator session. Fields beyond
// Type are populated per event type; unused ones marshal away.
type Event struct {
	Type           string              `json:"type"`
	ConversationID string              `json:"conversation_id,omitempty"`
	Conversation   *store.Conversation `json:"conversation,omitempty"`
	Message        *store.Message      `json:"message,omitempty"`
	Status         string              `json:"status,omitempty"`
	OperatorID     string              `json:"operator_id,omitempty"`
	Reason         string              `json:"reason,omitempty"`
	At             time.Time           `json:"at"`
}

// queue is a bounded per-session event buffer. When full, the oldest
// undelivered event is discarded to make room for the newest: an operator
// catching up sees recent state, not a stale backlog.
type queue struct {
	mu      sync.Mutex
	ch      chan *Event
	closed  bool
	dropped int
}

func (q *queue) push(e *Event) (droppedOne bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	for {
		select {
		case q.ch <- e:
			return droppedOne
		default:
		}
		select {
		case <-q.ch:
			q.dropped++
			droppedOne = true
		default:
		}
	}
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// Deliverer fans conversation events out to operator sessions. Targeting is
// decided by the presence hub: conversation events go to subscribed sessions,
// summary updates additionally go to list watchers, and failure notices go to
// all of one operator's sessions.
type Deliverer struct {
	mu        sync.RWMutex
	queues    map[string]*queue // session ID -> queue
	hub       *presence.Hub
	queueSize int
	logger    *slog.Logger
}

// NewDeliverer creates a deliverer routing through hub. queueSize bounds
// each session's pending events. Pass nil logger for default.
func NewDeliverer(hub *presence.Hub, queueSize int, logger *slog.Logger) *Deliverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deliverer{
		queues:    make(map[string]*queue),
		hub:       hub,
		queueSize: queueSize,
		logger:    logger.With("component", "fanout"),
	}
}

// Attach creates the event queue for a session and returns its receive side.
// The caller (the WebSocket writer) drains the channel until Detach closes it.
func (d *Deliverer) Attach(sessionID string) <-chan *Event {
	q := &queue{ch: make(chan *Event, d.queueSize)}

	d.mu.Lock()
	d.queues[sessionID] = q
	d.mu.Unlock()

	return q.ch
}

// Detach removes and closes a session's queue. Undelivered events are lost,
// which is fine: the session is gone.
func (d *Deliverer) Detach(sessionID string) {
	d.mu.Lock()
	q, ok := d.queues[sessionID]
	delete(d.queues, sessionID)
	d.mu.Unlock()

	if ok {
		q.close()
		if q.dropped > 0 {
			d.logger.Debug("session detached with dropped events",
				"session_id", sessionID,
				"dropped", q.dropped)
		}
	}
}

// NewMessage delivers a message event to sessions subscribed to the
// conversation, and a summary refresh to list watchers.
func (d *Deliverer) NewMessage(conv *store.Conversation, msg *store.Message) {
	ev := &Event{
		Type:           EventNewMessage,
		ConversationID: conv.ID,
		Conversation:   conv,
		Message:        msg,
		At:             time.Now(),
	}
	d.deliver(d.targets(conv.ID, true), ev)
}

// StatusChanged delivers a status transition to subscribed sessions and
// list watchers.
func (d *Deliverer) StatusChanged(conv *store.Conversation) {
	ev := &Event{
		Type:           EventStatusChanged,
		ConversationID: conv.ID,
		Conversation:   conv,
		Status:         conv.Status,
		At:             time.Now(),
	}
	d.deliver(d.targets(conv.ID, true), ev)
}

// AssignmentFailed tells every session of one operator that their claim on
// a conversation lost, naming the current owner in Reason.
func (d *Deliverer) AssignmentFailed(operatorID, conversationID, owner string) {
	ev := &Event{
		Type:           EventAssignmentFailed,
		ConversationID: conversationID,
		OperatorID:     operatorID,
		Reason:         "already assigned to " + owner,
		At:             time.Now(),
	}
	d.deliver(d.operatorTargets(operatorID), ev)
}

// SendFailed tells every session of one operator that an outbound message
// was stored but not delivered upstream.
func (d *Deliverer) SendFailed(operatorID, conversationID, reason string) {
	ev := &Event{
		Type:           EventSendFailed,
		ConversationID: conversationID,
		OperatorID:     operatorID,
		Reason:         reason,
		At:             time.Now(),
	}
	d.deliver(d.operatorTargets(operatorID), ev)
}

// targets collects session IDs subscribed to the conversation, plus list
// watchers when includeListWatchers is set. Duplicates collapse so a session
// both subscribed and watching the list receives one copy.
func (d *Deliverer) targets(conversationID string, includeListWatchers bool) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, s := range d.hub.SessionsFor(conversationID) {
		ids[s.ID] = struct{}{}
	}
	if includeListWatchers {
		for _, s := range d.hub.ListWatchers() {
			ids[s.ID] = struct{}{}
		}
	}
	return ids
}

func (d *Deliverer) operatorTargets(operatorID string) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, s := range d.hub.OperatorSessions(operatorID) {
		ids[s.ID] = struct{}{}
	}
	return ids
}

func (d *Deliverer) deliver(sessionIDs map[string]struct{}, ev *Event) {
	if len(sessionIDs) == 0 {
		return
	}

	d.mu.RLock()
	targets := make([]*queue, 0, len(sessionIDs))
	for id := range sessionIDs {
		if q, ok := d.queues[id]; ok {
			targets = append(targets, q)
		}
	}
	d.mu.RUnlock()

	for _, q := range targets {
		if q.push(ev) {
			d.logger.Debug("dropped oldest event for slow session",
				"event_type", ev.Type,
				"conversation_id", ev.ConversationID)
		}
	}
}
