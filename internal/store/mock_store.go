// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu          sync.RWMutex
	convs       map[string]*Conversation    // keyed by conversation ID
	processed   map[string]bool             // keyed by message ID
	outbound    map[string]*OutboundMessage // keyed by outbound ID
	quick       map[int64]*QuickReply       // keyed by quick reply ID
	nextQuickID int64
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		convs:       make(map[string]*Conversation),
		processed:   make(map[string]bool),
		outbound:    make(map[string]*OutboundMessage),
		quick:       make(map[int64]*QuickReply),
		nextQuickID: 1,
	}
}

func copyConversation(conv *Conversation) *Conversation {
	c := *conv
	return &c
}

// CreateConversation stores a new conversation.
func (m *MockStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.convs[conv.ID]; exists {
		return ErrDuplicateConversation
	}
	m.convs[conv.ID] = copyConversation(conv)
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyConversation(conv), nil
}

// ListConversations returns a filtered, sorted page of conversations.
func (m *MockStore) ListConversations(ctx context.Context, filter ConversationFilter) ([]*Conversation, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*Conversation
	for _, conv := range m.convs {
		if filter.Status != "" && conv.Status != filter.Status {
			continue
		}
		if filter.Operator != "" && (conv.AssignedOperator == nil || *conv.AssignedOperator != filter.Operator) {
			continue
		}
		if filter.UserID != "" && conv.UserID != filter.UserID {
			continue
		}
		if filter.HasUnread != nil && conv.HasNewMessage != *filter.HasUnread {
			continue
		}
		matched = append(matched, copyConversation(conv))
	}

	lastAt := func(c *Conversation) time.Time {
		if c.LastMessageAt == nil {
			return time.Time{}
		}
		return *c.LastMessageAt
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		switch filter.SortBy {
		case "last_message_at":
			return lastAt(a).After(lastAt(b))
		case "created_at":
			return a.CreatedAt.After(b.CreatedAt)
		case "unread_count":
			return a.UnreadCount > b.UnreadCount
		default:
			if a.HasNewMessage != b.HasNewMessage {
				return a.HasNewMessage
			}
			return lastAt(a).After(lastAt(b))
		}
	})

	total := len(matched)

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	start := (page - 1) * pageSize
	if start >= total {
		return nil, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// ListAssignedTo returns conversations owned by the operator.
func (m *MockStore) ListAssignedTo(ctx context.Context, operatorID string) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var assigned []*Conversation
	for _, conv := range m.convs {
		if conv.Status == StatusProcessing && conv.AssignedOperator != nil && *conv.AssignedOperator == operatorID {
			assigned = append(assigned, copyConversation(conv))
		}
	}
	return assigned, nil
}

// ApplyMessage folds a message into the conversation summary, once per message ID.
func (m *MockStore) ApplyMessage(ctx context.Context, msg *Message) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.processed[msg.ID] {
		return false, nil
	}

	conv, ok := m.convs[msg.ConversationID]
	if !ok {
		return false, ErrNotFound
	}

	m.processed[msg.ID] = true

	at := msg.CreatedAt
	conv.LastMessagePreview = Preview(msg.Content)
	conv.LastMessageFrom = msg.SenderType
	conv.LastMessageAt = &at
	conv.UpdatedAt = time.Now()
	if msg.SenderType == SenderUser {
		conv.UnreadCount++
		conv.HasNewMessage = true
	}
	return true, nil
}

// Transition moves the conversation between statuses with the optimistic check.
func (m *MockStore) Transition(ctx context.Context, id string, expected []string, next string, operator, expectedOperator *string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.convs[id]
	if !ok {
		return nil, ErrNotFound
	}

	matches := false
	for _, st := range expected {
		if conv.Status == st {
			matches = true
			break
		}
	}
	if !matches {
		return nil, ErrStatusConflict
	}
	if expectedOperator != nil &&
		(conv.AssignedOperator == nil || *conv.AssignedOperator != *expectedOperator) {
		return nil, ErrStatusConflict
	}

	now := time.Now()
	conv.Status = next
	conv.UpdatedAt = now

	switch next {
	case StatusProcessing:
		conv.AssignedOperator = operator
		conv.AssignedAt = &now
	case StatusProcessed, StatusClosed:
		conv.AssignedOperator = nil
		conv.AssignedAt = nil
		conv.ResolvedAt = &now
	default:
		conv.AssignedOperator = nil
		conv.AssignedAt = nil
	}

	return copyConversation(conv), nil
}

// MarkRead clears the unread counters.
func (m *MockStore) MarkRead(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.convs[id]
	if !ok {
		return ErrNotFound
	}
	conv.UnreadCount = 0
	conv.HasNewMessage = false
	conv.UpdatedAt = time.Now()
	return nil
}

// CreateOutbound records an operator send.
func (m *MockStore) CreateOutbound(ctx context.Context, msg *OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *msg
	m.outbound[msg.ID] = &c
	return nil
}

// MarkOutboundSent records provider acknowledgement.
func (m *MockStore) MarkOutboundSent(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.outbound[id]
	if !ok {
		return ErrNotFound
	}
	msg.State = OutboundSent
	msg.SentAt = &at
	return nil
}

// MarkOutboundFailed records provider rejection.
func (m *MockStore) MarkOutboundFailed(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.outbound[id]
	if !ok {
		return ErrNotFound
	}
	msg.State = OutboundFailed
	return nil
}

// ListOutbound returns recent outbound sends for a conversation.
func (m *MockStore) ListOutbound(ctx context.Context, conversationID string, limit int) ([]*OutboundMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit < 1 {
		limit = 50
	}

	var messages []*OutboundMessage
	for _, msg := range m.outbound {
		if msg.ConversationID == conversationID {
			c := *msg
			messages = append(messages, &c)
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].CreatedAt.After(messages[j].CreatedAt)
	})
	if len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

// CreateQuickReply stores a quick reply and assigns its ID.
func (m *MockStore) CreateQuickReply(ctx context.Context, reply *QuickReply) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	reply.ID = m.nextQuickID
	m.nextQuickID++
	c := *reply
	m.quick[reply.ID] = &c
	return nil
}

// GetQuickReply retrieves a quick reply by ID.
func (m *MockStore) GetQuickReply(ctx context.Context, id int64) (*QuickReply, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reply, ok := m.quick[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *reply
	return &c, nil
}

// ListQuickReplies returns the operator's templates, most used first.
func (m *MockStore) ListQuickReplies(ctx context.Context, operatorID string, includeShared bool) ([]*QuickReply, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var replies []*QuickReply
	for _, reply := range m.quick {
		if reply.OperatorID == operatorID || (includeShared && reply.IsShared) {
			c := *reply
			replies = append(replies, &c)
		}
	}
	sort.Slice(replies, func(i, j int) bool {
		return replies[i].UsageCount > replies[j].UsageCount
	})
	return replies, nil
}

// UpdateQuickReply updates a quick reply owned by the operator.
func (m *MockStore) UpdateQuickReply(ctx context.Context, reply *QuickReply) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.quick[reply.ID]
	if !ok || existing.OperatorID != reply.OperatorID {
		return ErrNotFound
	}
	existing.Title = reply.Title
	existing.Content = reply.Content
	existing.IsShared = reply.IsShared
	existing.UpdatedAt = time.Now()
	return nil
}

// DeleteQuickReply deletes a quick reply owned by the operator.
func (m *MockStore) DeleteQuickReply(ctx context.Context, id int64, operatorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.quick[id]
	if !ok || existing.OperatorID != operatorID {
		return ErrNotFound
	}
	delete(m.quick, id)
	return nil
}

// IncrementQuickReplyUsage bumps the usage counter.
func (m *MockStore) IncrementQuickReplyUsage(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	reply, ok := m.quick[id]
	if !ok {
		return ErrNotFound
	}
	reply.UsageCount++
	return nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}
