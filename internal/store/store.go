// ABOUTME: Store interface and data types for the conversation registry
// ABOUTME: Defines Conversation, outbound send and quick reply types plus the Store contract

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when trying to create a conversation that already exists
var ErrDuplicateConversation = errors.New("conversation already exists")

// ErrStatusConflict is returned by Transition when the conversation's current
// status is outside the expected set. The caller's view of the conversation
// is stale and must be refreshed.
var ErrStatusConflict = errors.New("status conflict")

// Conversation status values. The lifecycle is
// pending -> processing -> processed, with processing -> pending on release
// and processed/closed -> pending when a new inbound message reopens the
// conversation. closed is terminal for a conversation instance.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusClosed     = "closed"
)

// Sender values for last_message_from
const (
	SenderUser     = "user"
	SenderOperator = "operator"
)

// PreviewLength caps the stored last-message preview
const PreviewLength = 200

// Conversation is the authoritative record of one support thread.
// AssignedOperator is set if and only if Status is StatusProcessing.
type Conversation struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	Status             string     `json:"status"`
	AssignedOperator   *string    `json:"assigned_operator,omitempty"`
	AssignedAt         *time.Time `json:"assigned_at,omitempty"`
	LastMessagePreview string     `json:"last_message_preview"`
	LastMessageFrom    string     `json:"last_message_from"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	UnreadCount        int        `json:"unread_count"`
	HasNewMessage      bool       `json:"has_new_message"`
	ResolvedAt         *time.Time `json:"resolved_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Message is the subset of a chat message the registry needs. Payload
// storage belongs to the messaging provider; the registry records only the
// idempotency key and summary fields.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderType     string    `json:"sender_type"` // SenderUser or SenderOperator
	Content        string    `json:"content"`
	ContentType    int       `json:"content_type"`
	CreatedAt      time.Time `json:"created_at"`
}

// Outbound send states. A send is pending until the provider accepts it;
// "stored internally" and "delivered externally" are distinct facts.
const (
	OutboundPending = "pending"
	OutboundSent    = "sent"
	OutboundFailed  = "failed"
)

// OutboundMessage records an operator-initiated send and its delivery state.
type OutboundMessage struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	OperatorID     string     `json:"operator_id"`
	Content        string     `json:"content"`
	ContentType    int        `json:"content_type"`
	State          string     `json:"state"`
	CreatedAt      time.Time  `json:"created_at"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
}

// QuickReply is a reusable response template owned by an operator.
type QuickReply struct {
	ID         int64     `json:"id"`
	OperatorID string    `json:"operator_id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	IsShared   bool      `json:"is_shared"`
	UsageCount int       `json:"usage_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ConversationFilter narrows and orders List results.
type ConversationFilter struct {
	Status    string // empty for all
	Operator  string // assigned operator, empty for all
	UserID    string // empty for all
	HasUnread *bool  // nil for all
	SortBy    string // priority (default), last_message_at, created_at, unread_count
	Page      int    // 1-based
	PageSize  int
}

// Store defines the conversation registry persistence contract
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, filter ConversationFilter) ([]*Conversation, int, error)
	ListAssignedTo(ctx context.Context, operatorID string) ([]*Conversation, error)

	// ApplyMessage folds an inbound or outbound message into the
	// conversation's summary fields. It is idempotent per message ID:
	// the first call returns true and mutates counters, replays return
	// false and change nothing.
	ApplyMessage(ctx context.Context, msg *Message) (bool, error)

	// Transition moves the conversation between statuses with an
	// optimistic check: the update applies only while the current status
	// is in the expected set, otherwise ErrStatusConflict. The operator
	// pointer sets or clears assigned_operator together with the status.
	// A non-nil expectedOperator additionally conditions the update on
	// assigned_operator matching it, so a caller whose ownership lapsed
	// mid-operation cannot overwrite a successor's assignment.
	Transition(ctx context.Context, id string, expected []string, next string, operator, expectedOperator *string) (*Conversation, error)

	// MarkRead acknowledges the operator has viewed the conversation:
	// unread_count resets to 0 and has_new_message clears.
	MarkRead(ctx context.Context, id string) error

	// Outbound sends
	CreateOutbound(ctx context.Context, msg *OutboundMessage) error
	MarkOutboundSent(ctx context.Context, id string, at time.Time) error
	MarkOutboundFailed(ctx context.Context, id string) error
	ListOutbound(ctx context.Context, conversationID string, limit int) ([]*OutboundMessage, error)

	// Quick replies
	CreateQuickReply(ctx context.Context, reply *QuickReply) error
	GetQuickReply(ctx context.Context, id int64) (*QuickReply, error)
	ListQuickReplies(ctx context.Context, operatorID string, includeShared bool) ([]*QuickReply, error)
	UpdateQuickReply(ctx context.Context, reply *QuickReply) error
	DeleteQuickReply(ctx context.Context, id int64, operatorID string) error
	IncrementQuickReplyUsage(ctx context.Context, id int64) error

	// Close releases any resources held by the store
	Close() error
}

// Preview truncates message content to the stored preview length.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= PreviewLength {
		return content
	}
	return string(runes[:PreviewLength])
}
