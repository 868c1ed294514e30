// ABOUTME: Assignment coordinator tying locks, the registry, and fan-out together
// ABOUTME: Owns the conversation state machine and the inbound/outbound message flows

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opdesk/supportd/internal/dedupe"
	"github.com/opdesk/supportd/internal/fanout"
	"github.com/opdesk/supportd/internal/lock"
	"github.com/opdesk/supportd/internal/store"
)

// ErrNotOwner is returned when an operator acts on a conversation they are
// not assigned to.
var ErrNotOwner = errors.New("operator does not own conversation")

// ErrLockExpired is returned when an operator's lock lapsed between taking
// the conversation and acting on it. The operator must reassign.
var ErrLockExpired = errors.New("conversation lock expired")

// AlreadyAssignedError reports an assignment attempt on a conversation some
// other operator holds.
type AlreadyAssignedError struct {
	Owner string
}

func (e *AlreadyAssignedError) Error() string {
	return fmt.Sprintf("conversation already assigned to %s", e.Owner)
}

// Sender delivers operator messages to the upstream messaging provider.
type Sender interface {
	SendMessage(ctx context.Context, userID, content string, contentType int) error
}

// InboundMessage is a user message arriving from the ingest adapter.
type InboundMessage struct {
	MessageID      string
	ConversationID string
	UserID         string
	Content        string
	ContentType    int
	Timestamp      time.Time
}

// SendResult reports the outcome of one send within a batch.
type SendResult struct {
	ConversationID string
	MessageID      string
	Err            error
}

// Coordinator enforces at-most-one-operator ownership over conversations and
// drives their status transitions. Every assignment decision goes through the
// lock store first and the registry second: the lock is the authority on
// ownership, the registry reflects it.
type Coordinator struct {
	store     store.Store
	locks     lock.Store
	deliverer *fanout.Deliverer
	window    *dedupe.Window
	sender    Sender
	lockTTL   time.Duration
	logger    *slog.Logger
}

// New creates a coordinator. Pass nil logger for default.
func New(st store.Store, locks lock.Store, deliverer *fanout.Deliverer, window *dedupe.Window, sender Sender, lockTTL time.Duration, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:     st,
		locks:     locks,
		deliverer: deliverer,
		window:    window,
		sender:    sender,
		lockTTL:   lockTTL,
		logger:    logger.With("component", "coordinator"),
	}
}

// Assign claims the conversation for the operator. The lock is taken first;
// only the lock holder may move the registry row to processing. A denied
// lock returns AlreadyAssignedError naming the current owner and notifies
// the losing operator's sessions.
func (c *Coordinator) Assign(ctx context.Context, conversationID, operatorID string) (*store.Conversation, error) {
	acq, err := c.locks.Acquire(ctx, conversationID, operatorID, c.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquiring lock: %w", err)
	}
	if !acq.Granted {
		c.deliverer.AssignmentFailed(operatorID, conversationID, acq.Owner)
		return nil, &AlreadyAssignedError{Owner: acq.Owner}
	}

	// A conversation in processing with a lapsed lock is reclaimable: the
	// lock acquire above already proved the previous owner is gone.
	conv, err := c.store.Transition(ctx, conversationID,
		[]string{store.StatusPending, store.StatusProcessing},
		store.StatusProcessing, &operatorID, nil)
	if err != nil {
		// Do not hold a lock on a conversation we could not assign
		if relErr := c.locks.Release(ctx, conversationID, operatorID); relErr != nil {
			c.logger.Warn("releasing lock after failed assign",
				"conversation_id", conversationID,
				"error", relErr)
		}
		return nil, err
	}

	c.logger.Info("conversation assigned",
		"conversation_id", conversationID,
		"operator_id", operatorID)
	c.deliverer.StatusChanged(conv)
	return conv, nil
}

// Release returns an owned conversation to the pending pool.
func (c *Coordinator) Release(ctx context.Context, conversationID, operatorID string) (*store.Conversation, error) {
	if err := c.requireOwnership(ctx, conversationID, operatorID); err != nil {
		return nil, err
	}

	// Conditioning on the operator guards against the lock changing hands
	// between the ownership check above and this write
	conv, err := c.store.Transition(ctx, conversationID,
		[]string{store.StatusProcessing}, store.StatusPending, nil, &operatorID)
	if err != nil {
		return nil, err
	}

	if err := c.locks.Release(ctx, conversationID, operatorID); err != nil && !errors.Is(err, lock.ErrNotOwner) {
		c.logger.Warn("releasing lock",
			"conversation_id", conversationID,
			"error", err)
	}

	c.logger.Info("conversation released",
		"conversation_id", conversationID,
		"operator_id", operatorID)
	c.deliverer.StatusChanged(conv)
	return conv, nil
}

// Resolve marks an owned conversation processed and frees the lock.
func (c *Coordinator) Resolve(ctx context.Context, conversationID, operatorID string) (*store.Conversation, error) {
	return c.finish(ctx, conversationID, operatorID, store.StatusProcessed)
}

// Close ends an owned conversation and frees the lock.
func (c *Coordinator) Close(ctx context.Context, conversationID, operatorID string) (*store.Conversation, error) {
	return c.finish(ctx, conversationID, operatorID, store.StatusClosed)
}

func (c *Coordinator) finish(ctx context.Context, conversationID, operatorID, status string) (*store.Conversation, error) {
	if err := c.requireOwnership(ctx, conversationID, operatorID); err != nil {
		return nil, err
	}

	conv, err := c.store.Transition(ctx, conversationID,
		[]string{store.StatusProcessing}, status, nil, &operatorID)
	if err != nil {
		return nil, err
	}

	if err := c.locks.Release(ctx, conversationID, operatorID); err != nil && !errors.Is(err, lock.ErrNotOwner) {
		c.logger.Warn("releasing lock",
			"conversation_id", conversationID,
			"error", err)
	}

	c.logger.Info("conversation finished",
		"conversation_id", conversationID,
		"operator_id", operatorID,
		"status", status)
	c.deliverer.StatusChanged(conv)
	return conv, nil
}

// Reopen moves a finished conversation back to pending. No ownership is
// required; the conversation has none.
func (c *Coordinator) Reopen(ctx context.Context, conversationID string) (*store.Conversation, error) {
	conv, err := c.store.Transition(ctx, conversationID,
		[]string{store.StatusProcessed, store.StatusClosed},
		store.StatusPending, nil, nil)
	if err != nil {
		return nil, err
	}
	c.deliverer.StatusChanged(conv)
	return conv, nil
}

// OnMessage folds an inbound user message into the registry. Replayed
// message IDs are dropped, first by the in-memory window, then by the
// registry's durable processed-message check. A message into a finished
// conversation reopens it.
//
// The window mark is rolled back on every error return so a nacked and
// redelivered message is not mistaken for a replay of a message that was
// actually recorded.
func (c *Coordinator) OnMessage(ctx context.Context, in *InboundMessage) error {
	if c.window.Seen(in.MessageID) {
		c.logger.Debug("dropping replayed message",
			"message_id", in.MessageID)
		return nil
	}

	if err := c.ensureConversation(ctx, in); err != nil {
		c.window.Forget(in.MessageID)
		return err
	}

	msg := &store.Message{
		ID:             in.MessageID,
		ConversationID: in.ConversationID,
		SenderType:     store.SenderUser,
		Content:        in.Content,
		ContentType:    in.ContentType,
		CreatedAt:      in.Timestamp,
	}

	applied, err := c.store.ApplyMessage(ctx, msg)
	if err != nil {
		c.window.Forget(in.MessageID)
		return fmt.Errorf("applying message: %w", err)
	}

	// The reopen runs even on a registry-level replay (applied false): the
	// first delivery may have died between the apply and this transition.
	conv, err := c.store.Transition(ctx, in.ConversationID,
		[]string{store.StatusProcessed, store.StatusClosed},
		store.StatusPending, nil, nil)
	switch {
	case err == nil:
		c.deliverer.StatusChanged(conv)
	case errors.Is(err, store.ErrStatusConflict):
		// Already pending or processing, nothing to reopen
		if !applied {
			return nil
		}
		conv, err = c.store.GetConversation(ctx, in.ConversationID)
		if err != nil {
			c.window.Forget(in.MessageID)
			return fmt.Errorf("loading conversation: %w", err)
		}
	default:
		c.window.Forget(in.MessageID)
		return fmt.Errorf("reopening conversation: %w", err)
	}

	if applied {
		c.deliverer.NewMessage(conv, msg)
	}
	return nil
}

// SendMessage stores and delivers an operator reply. The message row is
// written before the provider call, so a failed delivery is visible as a
// failed send rather than lost. Storage success with delivery failure
// returns the stored message alongside the error.
func (c *Coordinator) SendMessage(ctx context.Context, conversationID, operatorID, content string, contentType int) (*store.OutboundMessage, error) {
	if err := c.requireOwnership(ctx, conversationID, operatorID); err != nil {
		return nil, err
	}

	conv, err := c.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	out := &store.OutboundMessage{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		OperatorID:     operatorID,
		Content:        content,
		ContentType:    contentType,
		State:          store.OutboundPending,
		CreatedAt:      time.Now(),
	}
	if err := c.store.CreateOutbound(ctx, out); err != nil {
		return nil, fmt.Errorf("storing outbound message: %w", err)
	}

	if err := c.sender.SendMessage(ctx, conv.UserID, content, contentType); err != nil {
		if markErr := c.store.MarkOutboundFailed(ctx, out.ID); markErr != nil {
			c.logger.Error("marking outbound failed",
				"message_id", out.ID,
				"error", markErr)
		}
		out.State = store.OutboundFailed
		c.deliverer.SendFailed(operatorID, conversationID, err.Error())
		return out, fmt.Errorf("delivering message: %w", err)
	}

	sentAt := time.Now()
	if err := c.store.MarkOutboundSent(ctx, out.ID, sentAt); err != nil {
		c.logger.Error("marking outbound sent",
			"message_id", out.ID,
			"error", err)
	}
	out.State = store.OutboundSent
	out.SentAt = &sentAt

	// Reflect the reply in the conversation summary and fan it out
	applied, err := c.store.ApplyMessage(ctx, &store.Message{
		ID:             out.ID,
		ConversationID: conversationID,
		SenderType:     store.SenderOperator,
		Content:        content,
		ContentType:    contentType,
		CreatedAt:      sentAt,
	})
	if err != nil {
		c.logger.Error("applying outbound summary",
			"message_id", out.ID,
			"error", err)
	} else if applied {
		if conv, err := c.store.GetConversation(ctx, conversationID); err == nil {
			c.deliverer.NewMessage(conv, &store.Message{
				ID:             out.ID,
				ConversationID: conversationID,
				SenderType:     store.SenderOperator,
				Content:        content,
				ContentType:    contentType,
				CreatedAt:      sentAt,
			})
		}
	}

	return out, nil
}

// BatchSend sends the same content to several owned conversations. Each
// conversation is attempted independently; a failure on one never aborts
// the rest.
func (c *Coordinator) BatchSend(ctx context.Context, conversationIDs []string, operatorID, content string, contentType int) []SendResult {
	results := make([]SendResult, 0, len(conversationIDs))
	for _, id := range conversationIDs {
		out, err := c.SendMessage(ctx, id, operatorID, content, contentType)
		res := SendResult{ConversationID: id, Err: err}
		if out != nil {
			res.MessageID = out.ID
		}
		results = append(results, res)
	}
	return results
}

// Heartbeat renews the locks on every conversation assigned to the operator.
// Conversations whose lock could not be renewed are returned; the operator
// has lost them and the registry rows await reclaim by the next assignee.
func (c *Coordinator) Heartbeat(ctx context.Context, operatorID string) (lost []string, err error) {
	assigned, err := c.store.ListAssignedTo(ctx, operatorID)
	if err != nil {
		return nil, fmt.Errorf("listing assignments: %w", err)
	}

	for _, conv := range assigned {
		if renewErr := c.locks.Renew(ctx, conv.ID, operatorID, c.lockTTL); renewErr != nil {
			if errors.Is(renewErr, lock.ErrLost) {
				c.logger.Warn("lock lost on heartbeat",
					"conversation_id", conv.ID,
					"operator_id", operatorID)
				lost = append(lost, conv.ID)
				continue
			}
			return lost, fmt.Errorf("renewing lock for %s: %w", conv.ID, renewErr)
		}
	}
	return lost, nil
}

// requireOwnership verifies the operator currently holds the conversation
// lock. A lock held by no one maps to ErrLockExpired when the registry
// still shows the operator assigned, ErrNotOwner otherwise.
func (c *Coordinator) requireOwnership(ctx context.Context, conversationID, operatorID string) error {
	owner, err := c.locks.Owner(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("checking lock owner: %w", err)
	}
	if owner == operatorID {
		return nil
	}
	if owner != "" {
		return ErrNotOwner
	}

	conv, err := c.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.AssignedOperator != nil && *conv.AssignedOperator == operatorID {
		return ErrLockExpired
	}
	return ErrNotOwner
}

// ensureConversation creates the registry row for a first-contact message.
// Races between concurrent creators collapse onto the duplicate check.
func (c *Coordinator) ensureConversation(ctx context.Context, in *InboundMessage) error {
	_, err := c.store.GetConversation(ctx, in.ConversationID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("loading conversation: %w", err)
	}

	now := time.Now()
	createErr := c.store.CreateConversation(ctx, &store.Conversation{
		ID:        in.ConversationID,
		UserID:    in.UserID,
		Status:    store.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if createErr != nil && !errors.Is(createErr, store.ErrDuplicateConversation) {
		return fmt.Errorf("creating conversation: %w", createErr)
	}
	return nil
}
