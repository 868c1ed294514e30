// ABOUTME: Tests for the SQLite conversation registry
// ABOUTME: Covers CRUD, idempotent message application, optimistic transitions, and filters

package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newConversation(id, userID string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        id,
		UserID:    userID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSQLiteStore_CreateAndGetConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newConversation("conv-1", "user-1")))

	conv, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", conv.ID)
	assert.Equal(t, "user-1", conv.UserID)
	assert.Equal(t, StatusPending, conv.Status)
	assert.Nil(t, conv.AssignedOperator)
	assert.Zero(t, conv.UnreadCount)
	assert.False(t, conv.HasNewMessage)
}

func TestSQLiteStore_CreateDuplicateConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newConversation("conv-1", "user-1")))
	err := s.CreateConversation(ctx, newConversation("conv-1", "user-2"))
	assert.ErrorIs(t, err, ErrDuplicateConversation)
}

func TestSQLiteStore_GetConversationNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetConversation(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ApplyMessageUpdatesSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newConversation("conv-1", "user-1")))

	applied, err := s.ApplyMessage(ctx, &Message{
		ID:             "msg-1",
		ConversationID: "conv-1",
		SenderType:     SenderUser,
		Content:        "hello, I need help",
		CreatedAt:      time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, applied)

	conv, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 1, conv.UnreadCount)
	assert.True(t, conv.HasNewMessage)
	assert.Equal(t, "hello, I need help", conv.LastMessagePreview)
	assert.Equal(t, SenderUser, conv.LastMessageFrom)
	require.NotNil(t, conv.LastMessageAt)
}

func TestSQLiteStore_ApplyMessageIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newConversation("conv-1", "user-1")))

	msg := &Message{
		ID:             "msg-1",
		ConversationID: "conv-1",
		SenderType:     SenderUser,
		Content:        "hello",
		CreatedAt:      time.Now(),
	}

	applied, err := s.ApplyMessage(ctx, msg)
	require.NoError(t, err)
	assert.True(t, applied)

	first, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)

	// Replay the same message twice more
	for i := 0; i < 2; i++ {
		applied, err = s.ApplyMessage(ctx, msg)
		require.NoError(t, err)
		assert.False(t, applied)
	}

	replayed, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, first.UnreadCount, replayed.UnreadCount)
	assert.Equal(t, first.LastMessagePreview, replayed.LastMessagePreview)
}

func TestSQLiteStore_ApplyMessageFromOperatorLeavesUnreadAlone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newConversation("conv-1", "user-1")))

	applied, err := s.ApplyMessage(ctx, &Message{
		ID:             "msg-1",
		ConversationID: "conv-1",
		SenderType:     SenderOperator,
		Content:        "how can I help?",
		CreatedAt:      time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, applied)

	conv, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Zero(t, conv.UnreadCount)
	assert.False(t, conv.HasNewMessage)
	assert.Equal(t, SenderOperator, conv.LastMessageFrom)
}

func TestSQLiteStore_ApplyMessageTruncatesPreview(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newConversation("conv-1", "user-1")))

	long := strings.Repeat("x", PreviewLength+50)
	_, err := s.ApplyMessage(ctx, &Message{
		ID:             "msg-1",
		ConversationID: "conv-1",
		SenderType:     SenderUser,
		Content:        long,
		CreatedAt:      time.Now(),
	})
	require.NoError(t, err)

	conv, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Len(t, conv.LastMessagePreview, PreviewLength)
}

func TestSQLiteStore_ApplyMessageUnknownConversation(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ApplyMessage(context.Background(), &Message{
		ID:             "msg-1",
		ConversationID: "nope",
		SenderType:     SenderUser,
		Content:        "hello",
		CreatedAt:      time.Now(),
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_TransitionToProcessingSetsOperator(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newConversation("conv-1", "user-1")))

	op := "op-a"
	conv, err := s.Transition(ctx, "conv-1", []string{StatusPending}, StatusProcessing, &op, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusProcessing, conv.Status)
	require.NotNil(t, conv.AssignedOperator)
	assert.Equal(t, "op-a", *conv.AssignedOperator)
	assert.NotNil(t, conv.AssignedAt)
}

func TestSQLiteStore_TransitionToPendingClearsOperator(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newConversation("conv-1", "user-1")))

	op := "op-a"
	_, err := s.Transition(ctx, "conv-1", []string{StatusPending}, StatusProcessing, &op, nil)
	require.NoError(t, err)

	conv, err := s.Transition(ctx, "conv-1", []string{StatusProcessing}, StatusPending, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, conv.Status)
	assert.Nil(t, conv.AssignedOperator)
	assert.Nil(t, conv.AssignedAt)
}

func TestSQLiteStore_TransitionToProcessedStampsResolvedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newConversation("conv-1", "user-1")))

	op := "op-a"
	_, err := s.Transition(ctx, "conv-1", []string{StatusPending}, StatusProcessing, &op, nil)
	require.NoError(t, err)

	conv, err := s.Transition(ctx, "conv-1", []string{StatusProcessing}, StatusProcessed, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusProcessed, conv.Status)
	assert.Nil(t, conv.AssignedOperator)
	assert.NotNil(t, conv.ResolvedAt)
}

func TestSQLiteStore_TransitionStatusConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newConversation("conv-1", "user-1")))

	// conv-1 is pending; expecting processing must conflict
	_, err := s.Transition(ctx, "conv-1", []string{StatusProcessing}, StatusPending, nil, nil)
	assert.ErrorIs(t, err, ErrStatusConflict)

	// The failed transition must not have touched the row
	conv, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, conv.Status)
}

func TestSQLiteStore_TransitionGuardsAssignedOperator(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newConversation("conv-1", "user-1")))

	opB := "op-b"
	_, err := s.Transition(ctx, "conv-1", []string{StatusPending}, StatusProcessing, &opB, nil)
	require.NoError(t, err)

	// op-a's stale release must not clear op-b's assignment
	opA := "op-a"
	_, err = s.Transition(ctx, "conv-1", []string{StatusProcessing}, StatusPending, nil, &opA)
	assert.ErrorIs(t, err, ErrStatusConflict)

	conv, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, conv.Status)
	require.NotNil(t, conv.AssignedOperator)
	assert.Equal(t, "op-b", *conv.AssignedOperator)

	// The actual assignee passes the guard
	conv, err = s.Transition(ctx, "conv-1", []string{StatusProcessing}, StatusPending, nil, &opB)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, conv.Status)
}

func TestSQLiteStore_TransitionNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Transition(context.Background(), "nope", []string{StatusPending}, StatusClosed, nil, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_MarkRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newConversation("conv-1", "user-1")))
	_, err := s.ApplyMessage(ctx, &Message{
		ID:             "msg-1",
		ConversationID: "conv-1",
		SenderType:     SenderUser,
		Content:        "hello",
		CreatedAt:      time.Now(),
	})
	require.NoError(t, err)

	require.NoError(t, s.MarkRead(ctx, "conv-1"))

	conv, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Zero(t, conv.UnreadCount)
	assert.False(t, conv.HasNewMessage)
}

func TestSQLiteStore_ListConversationsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newConversation("conv-1", "user-1")))
	require.NoError(t, s.CreateConversation(ctx, newConversation("conv-2", "user-2")))
	require.NoError(t, s.CreateConversation(ctx, newConversation("conv-3", "user-1")))

	op := "op-a"
	_, err := s.Transition(ctx, "conv-2", []string{StatusPending}, StatusProcessing, &op, nil)
	require.NoError(t, err)

	// By status
	convs, total, err := s.ListConversations(ctx, ConversationFilter{Status: StatusPending})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, convs, 2)

	// By operator
	convs, total, err = s.ListConversations(ctx, ConversationFilter{Operator: "op-a"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, convs, 1)
	assert.Equal(t, "conv-2", convs[0].ID)

	// By user
	_, total, err = s.ListConversations(ctx, ConversationFilter{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	// By unread flag
	_, err = s.ApplyMessage(ctx, &Message{
		ID: "msg-1", ConversationID: "conv-3", SenderType: SenderUser,
		Content: "hi", CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	hasUnread := true
	convs, total, err = s.ListConversations(ctx, ConversationFilter{HasUnread: &hasUnread})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, convs, 1)
	assert.Equal(t, "conv-3", convs[0].ID)
}

func TestSQLiteStore_ListConversationsPriorityOrderAndPaging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"conv-1", "conv-2", "conv-3"} {
		require.NoError(t, s.CreateConversation(ctx, newConversation(id, "user-1")))
	}

	// Give conv-2 an unread message so priority order puts it first
	_, err := s.ApplyMessage(ctx, &Message{
		ID: "msg-1", ConversationID: "conv-2", SenderType: SenderUser,
		Content: "urgent", CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	convs, total, err := s.ListConversations(ctx, ConversationFilter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, convs, 2)
	assert.Equal(t, "conv-2", convs[0].ID)

	convs, _, err = s.ListConversations(ctx, ConversationFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestSQLiteStore_ListAssignedTo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, newConversation("conv-1", "user-1")))
	require.NoError(t, s.CreateConversation(ctx, newConversation("conv-2", "user-2")))

	op := "op-a"
	_, err := s.Transition(ctx, "conv-1", []string{StatusPending}, StatusProcessing, &op, nil)
	require.NoError(t, err)

	assigned, err := s.ListAssignedTo(ctx, "op-a")
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, "conv-1", assigned[0].ID)

	assigned, err = s.ListAssignedTo(ctx, "op-b")
	require.NoError(t, err)
	assert.Empty(t, assigned)
}

func TestSQLiteStore_OutboundLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := &OutboundMessage{
		ID:             "out-1",
		ConversationID: "conv-1",
		OperatorID:     "op-a",
		Content:        "hello there",
		ContentType:    101,
		State:          OutboundPending,
		CreatedAt:      time.Now(),
	}
	require.NoError(t, s.CreateOutbound(ctx, msg))

	sent := time.Now()
	require.NoError(t, s.MarkOutboundSent(ctx, "out-1", sent))

	list, err := s.ListOutbound(ctx, "conv-1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, OutboundSent, list[0].State)
	require.NotNil(t, list[0].SentAt)

	// Failure path on a second send
	require.NoError(t, s.CreateOutbound(ctx, &OutboundMessage{
		ID: "out-2", ConversationID: "conv-1", OperatorID: "op-a",
		Content: "again", ContentType: 101, State: OutboundPending, CreatedAt: time.Now(),
	}))
	require.NoError(t, s.MarkOutboundFailed(ctx, "out-2"))

	list, err = s.ListOutbound(ctx, "conv-1", 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestSQLiteStore_MarkOutboundSentNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.MarkOutboundSent(context.Background(), "nope", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_QuickReplyCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	reply := &QuickReply{
		OperatorID: "op-a",
		Title:      "greeting",
		Content:    "Hello! How can I help you today?",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, s.CreateQuickReply(ctx, reply))
	assert.NotZero(t, reply.ID)

	got, err := s.GetQuickReply(ctx, reply.ID)
	require.NoError(t, err)
	assert.Equal(t, "greeting", got.Title)

	got.Title = "welcome"
	require.NoError(t, s.UpdateQuickReply(ctx, got))

	got, err = s.GetQuickReply(ctx, reply.ID)
	require.NoError(t, err)
	assert.Equal(t, "welcome", got.Title)

	require.NoError(t, s.IncrementQuickReplyUsage(ctx, reply.ID))
	got, err = s.GetQuickReply(ctx, reply.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsageCount)

	require.NoError(t, s.DeleteQuickReply(ctx, reply.ID, "op-a"))
	_, err = s.GetQuickReply(ctx, reply.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_QuickReplySharing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, s.CreateQuickReply(ctx, &QuickReply{
		OperatorID: "op-a", Title: "mine", Content: "x", CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.CreateQuickReply(ctx, &QuickReply{
		OperatorID: "op-b", Title: "shared", Content: "y", IsShared: true, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.CreateQuickReply(ctx, &QuickReply{
		OperatorID: "op-b", Title: "private", Content: "z", CreatedAt: now, UpdatedAt: now,
	}))

	replies, err := s.ListQuickReplies(ctx, "op-a", true)
	require.NoError(t, err)
	assert.Len(t, replies, 2)

	replies, err = s.ListQuickReplies(ctx, "op-a", false)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "mine", replies[0].Title)
}

func TestSQLiteStore_DeleteQuickReplyWrongOperator(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	reply := &QuickReply{OperatorID: "op-a", Title: "t", Content: "c", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateQuickReply(ctx, reply))

	err := s.DeleteQuickReply(ctx, reply.ID, "op-b")
	assert.ErrorIs(t, err, ErrNotFound)
}
