// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation registry persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending', 'processing', 'processed', 'closed')),
			assigned_operator TEXT,
			assigned_at TEXT,
			last_message_preview TEXT NOT NULL DEFAULT '',
			last_message_from TEXT NOT NULL DEFAULT '',
			last_message_at TEXT,
			unread_count INTEGER NOT NULL DEFAULT 0,
			has_new_message INTEGER NOT NULL DEFAULT 0,
			resolved_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_status
			ON conversations(status);
		CREATE INDEX IF NOT EXISTS idx_conversations_operator
			ON conversations(assigned_operator);
		CREATE INDEX IF NOT EXISTS idx_conversations_last_message
			ON conversations(last_message_at);

		-- Idempotency ledger: one row per message ever folded into a
		-- conversation's counters. Replays hit the primary key and are
		-- ignored.
		CREATE TABLE IF NOT EXISTS processed_messages (
			message_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_processed_messages_conversation
			ON processed_messages(conversation_id);

		CREATE TABLE IF NOT EXISTS outbound_messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			operator_id TEXT NOT NULL,
			content TEXT NOT NULL,
			content_type INTEGER NOT NULL DEFAULT 101,
			state TEXT NOT NULL DEFAULT 'pending'
				CHECK (state IN ('pending', 'sent', 'failed')),
			created_at TEXT NOT NULL,
			sent_at TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_outbound_conversation
			ON outbound_messages(conversation_id, created_at);

		CREATE TABLE IF NOT EXISTS quick_replies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			operator_id TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			is_shared INTEGER NOT NULL DEFAULT 0,
			usage_count INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_quick_replies_operator
			ON quick_replies(operator_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTimePtr(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateConversation inserts a new conversation row.
// Returns ErrDuplicateConversation if the ID already exists.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	query := `
		INSERT INTO conversations (
			id, user_id, status, assigned_operator, assigned_at,
			last_message_preview, last_message_from, last_message_at,
			unread_count, has_new_message, resolved_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		conv.UserID,
		conv.Status,
		conv.AssignedOperator,
		formatTimePtr(conv.AssignedAt),
		conv.LastMessagePreview,
		conv.LastMessageFrom,
		formatTimePtr(conv.LastMessageAt),
		conv.UnreadCount,
		conv.HasNewMessage,
		formatTimePtr(conv.ResolvedAt),
		formatTime(conv.CreatedAt),
		formatTime(conv.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "user_id", conv.UserID)
	return nil
}

const conversationColumns = `
	id, user_id, status, assigned_operator, assigned_at,
	last_message_preview, last_message_from, last_message_at,
	unread_count, has_new_message, resolved_at, created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var assignedAt, lastMessageAt, resolvedAt *string
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&conv.ID,
		&conv.UserID,
		&conv.Status,
		&conv.AssignedOperator,
		&assignedAt,
		&conv.LastMessagePreview,
		&conv.LastMessageFrom,
		&lastMessageAt,
		&conv.UnreadCount,
		&conv.HasNewMessage,
		&resolvedAt,
		&createdAtStr,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	if conv.AssignedAt, err = parseTimePtr(assignedAt); err != nil {
		return nil, fmt.Errorf("parsing assigned_at: %w", err)
	}
	if conv.LastMessageAt, err = parseTimePtr(lastMessageAt); err != nil {
		return nil, fmt.Errorf("parsing last_message_at: %w", err)
	}
	if conv.ResolvedAt, err = parseTimePtr(resolvedAt); err != nil {
		return nil, fmt.Errorf("parsing resolved_at: %w", err)
	}
	if conv.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if conv.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &conv, nil
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`
	return scanConversation(s.db.QueryRowContext(ctx, query, id))
}

// ListConversations returns a filtered, sorted page of conversations along
// with the total match count.
func (s *SQLiteStore) ListConversations(ctx context.Context, filter ConversationFilter) ([]*Conversation, int, error) {
	var where []string
	var args []any

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Operator != "" {
		where = append(where, "assigned_operator = ?")
		args = append(args, filter.Operator)
	}
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.HasUnread != nil {
		where = append(where, "has_new_message = ?")
		args = append(args, *filter.HasUnread)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM conversations" + whereClause
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting conversations: %w", err)
	}

	var orderBy string
	switch filter.SortBy {
	case "last_message_at":
		orderBy = "last_message_at DESC"
	case "created_at":
		orderBy = "created_at DESC"
	case "unread_count":
		orderBy = "unread_count DESC"
	default:
		// Priority ordering: unread first, then most recent activity
		orderBy = "has_new_message DESC, last_message_at DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	query := "SELECT " + conversationColumns + " FROM conversations" + whereClause +
		" ORDER BY " + orderBy + " LIMIT ? OFFSET ?"
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, 0, err
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating conversations: %w", err)
	}

	return conversations, total, nil
}

// ListAssignedTo returns every conversation currently owned by the operator.
func (s *SQLiteStore) ListAssignedTo(ctx context.Context, operatorID string) ([]*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations
		WHERE assigned_operator = ? AND status = ?`

	rows, err := s.db.QueryContext(ctx, query, operatorID, StatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("querying assigned conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// ApplyMessage folds a message into the conversation's summary fields,
// exactly once per message ID. The idempotency insert and the counter
// update commit together or not at all.
func (s *SQLiteStore) ApplyMessage(ctx context.Context, msg *Message) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_messages (message_id, conversation_id, created_at)
		 VALUES (?, ?, ?)`,
		msg.ID, msg.ConversationID, formatTime(msg.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("recording message id: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking message insert: %w", err)
	}
	if inserted == 0 {
		// Already processed: replay, leave counters untouched
		return false, nil
	}

	now := formatTime(time.Now())
	preview := Preview(msg.Content)

	var update string
	if msg.SenderType == SenderUser {
		update = `UPDATE conversations SET
			unread_count = unread_count + 1,
			has_new_message = 1,
			last_message_preview = ?,
			last_message_from = ?,
			last_message_at = ?,
			updated_at = ?
			WHERE id = ?`
	} else {
		update = `UPDATE conversations SET
			last_message_preview = ?,
			last_message_from = ?,
			last_message_at = ?,
			updated_at = ?
			WHERE id = ?`
	}

	res, err = tx.ExecContext(ctx, update,
		preview, msg.SenderType, formatTime(msg.CreatedAt), now, msg.ConversationID)
	if err != nil {
		return false, fmt.Errorf("updating conversation summary: %w", err)
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking summary update: %w", err)
	}
	if updated == 0 {
		return false, ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing message update: %w", err)
	}

	s.logger.Debug("applied message",
		"conversation_id", msg.ConversationID,
		"message_id", msg.ID,
		"sender_type", msg.SenderType)
	return true, nil
}

// Transition moves the conversation to the next status, conditioned on the
// current status being in the expected set (optimistic check against
// concurrent writers) and, when expectedOperator is set, on the current
// assignment matching it. Assignment fields follow the target status:
// processing sets the operator and assigned_at, pending clears them,
// processed and closed clear them and stamp resolved_at.
func (s *SQLiteStore) Transition(ctx context.Context, id string, expected []string, next string, operator, expectedOperator *string) (*Conversation, error) {
	if len(expected) == 0 {
		return nil, fmt.Errorf("transition requires at least one expected status")
	}

	now := time.Now()
	placeholders := strings.Repeat("?, ", len(expected)-1) + "?"

	var query string
	var args []any

	switch next {
	case StatusProcessing:
		if operator == nil {
			return nil, fmt.Errorf("transition to processing requires an operator")
		}
		query = `UPDATE conversations SET
			status = ?, assigned_operator = ?, assigned_at = ?, updated_at = ?
			WHERE id = ? AND status IN (` + placeholders + `)`
		args = []any{next, *operator, formatTime(now), formatTime(now), id}
	case StatusProcessed, StatusClosed:
		query = `UPDATE conversations SET
			status = ?, assigned_operator = NULL, assigned_at = NULL,
			resolved_at = ?, updated_at = ?
			WHERE id = ? AND status IN (` + placeholders + `)`
		args = []any{next, formatTime(now), formatTime(now), id}
	default: // StatusPending
		query = `UPDATE conversations SET
			status = ?, assigned_operator = NULL, assigned_at = NULL, updated_at = ?
			WHERE id = ? AND status IN (` + placeholders + `)`
		args = []any{next, formatTime(now), id}
	}

	for _, st := range expected {
		args = append(args, st)
	}

	if expectedOperator != nil {
		query += ` AND assigned_operator = ?`
		args = append(args, *expectedOperator)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("transitioning conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking transition: %w", err)
	}

	if affected == 0 {
		// Distinguish a stale status from a missing conversation
		if _, err := s.GetConversation(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrStatusConflict
	}

	return s.GetConversation(ctx, id)
}

// MarkRead clears the unread counters for a conversation.
func (s *SQLiteStore) MarkRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET unread_count = 0, has_new_message = 0, updated_at = ? WHERE id = ?`,
		formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("marking conversation read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking mark read: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateOutbound records an operator send in the pending state.
func (s *SQLiteStore) CreateOutbound(ctx context.Context, msg *OutboundMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outbound_messages (id, conversation_id, operator_id, content, content_type, state, created_at, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.OperatorID, msg.Content, msg.ContentType,
		msg.State, formatTime(msg.CreatedAt), formatTimePtr(msg.SentAt))
	if err != nil {
		return fmt.Errorf("inserting outbound message: %w", err)
	}
	return nil
}

// MarkOutboundSent records provider acknowledgement of a send.
func (s *SQLiteStore) MarkOutboundSent(ctx context.Context, id string, at time.Time) error {
	return s.setOutboundState(ctx, id, OutboundSent, &at)
}

// MarkOutboundFailed records provider rejection of a send.
func (s *SQLiteStore) MarkOutboundFailed(ctx context.Context, id string) error {
	return s.setOutboundState(ctx, id, OutboundFailed, nil)
}

func (s *SQLiteStore) setOutboundState(ctx context.Context, id, state string, sentAt *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE outbound_messages SET state = ?, sent_at = ? WHERE id = ?`,
		state, formatTimePtr(sentAt), id)
	if err != nil {
		return fmt.Errorf("updating outbound state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking outbound update: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOutbound returns the most recent outbound sends for a conversation.
func (s *SQLiteStore) ListOutbound(ctx context.Context, conversationID string, limit int) ([]*OutboundMessage, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, operator_id, content, content_type, state, created_at, sent_at
		 FROM outbound_messages WHERE conversation_id = ?
		 ORDER BY created_at DESC LIMIT ?`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying outbound messages: %w", err)
	}
	defer rows.Close()

	var messages []*OutboundMessage
	for rows.Next() {
		var msg OutboundMessage
		var createdAtStr string
		var sentAt *string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.OperatorID, &msg.Content,
			&msg.ContentType, &msg.State, &createdAtStr, &sentAt); err != nil {
			return nil, fmt.Errorf("scanning outbound message: %w", err)
		}
		if msg.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if msg.SentAt, err = parseTimePtr(sentAt); err != nil {
			return nil, fmt.Errorf("parsing sent_at: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// CreateQuickReply inserts a new quick reply and assigns its ID.
func (s *SQLiteStore) CreateQuickReply(ctx context.Context, reply *QuickReply) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO quick_replies (operator_id, title, content, is_shared, usage_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		reply.OperatorID, reply.Title, reply.Content, reply.IsShared, reply.UsageCount,
		formatTime(reply.CreatedAt), formatTime(reply.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting quick reply: %w", err)
	}

	reply.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading quick reply id: %w", err)
	}
	return nil
}

// GetQuickReply retrieves a quick reply by ID.
func (s *SQLiteStore) GetQuickReply(ctx context.Context, id int64) (*QuickReply, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, operator_id, title, content, is_shared, usage_count, created_at, updated_at
		 FROM quick_replies WHERE id = ?`, id)
	return scanQuickReply(row)
}

func scanQuickReply(row rowScanner) (*QuickReply, error) {
	var reply QuickReply
	var createdAtStr, updatedAtStr string

	err := row.Scan(&reply.ID, &reply.OperatorID, &reply.Title, &reply.Content,
		&reply.IsShared, &reply.UsageCount, &createdAtStr, &updatedAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning quick reply: %w", err)
	}

	if reply.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if reply.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &reply, nil
}

// ListQuickReplies returns the operator's templates, most used first,
// optionally including templates shared by other operators.
func (s *SQLiteStore) ListQuickReplies(ctx context.Context, operatorID string, includeShared bool) ([]*QuickReply, error) {
	where := "operator_id = ?"
	if includeShared {
		where = "(operator_id = ? OR is_shared = 1)"
	}
	query := `SELECT id, operator_id, title, content, is_shared, usage_count, created_at, updated_at
		FROM quick_replies WHERE ` + where + ` ORDER BY usage_count DESC`
	args := []any{operatorID}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying quick replies: %w", err)
	}
	defer rows.Close()

	var replies []*QuickReply
	for rows.Next() {
		reply, err := scanQuickReply(rows)
		if err != nil {
			return nil, err
		}
		replies = append(replies, reply)
	}
	return replies, rows.Err()
}

// UpdateQuickReply updates a quick reply owned by the operator.
func (s *SQLiteStore) UpdateQuickReply(ctx context.Context, reply *QuickReply) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE quick_replies SET title = ?, content = ?, is_shared = ?, updated_at = ?
		 WHERE id = ? AND operator_id = ?`,
		reply.Title, reply.Content, reply.IsShared, formatTime(time.Now()),
		reply.ID, reply.OperatorID)
	if err != nil {
		return fmt.Errorf("updating quick reply: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking quick reply update: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteQuickReply deletes a quick reply owned by the operator.
func (s *SQLiteStore) DeleteQuickReply(ctx context.Context, id int64, operatorID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM quick_replies WHERE id = ? AND operator_id = ?`, id, operatorID)
	if err != nil {
		return fmt.Errorf("deleting quick reply: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking quick reply delete: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementQuickReplyUsage bumps the usage counter atomically.
func (s *SQLiteStore) IncrementQuickReplyUsage(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE quick_replies SET usage_count = usage_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("incrementing quick reply usage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking usage increment: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
