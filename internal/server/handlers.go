// ABOUTME: REST handlers for conversations, messaging, and quick replies
// ABOUTME: Thin translation layer between HTTP and the coordinator/registry

package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/opdesk/supportd/internal/store"
)

// sendMessageRequest is the JSON body for POST /api/v1/conversations/{id}/messages.
type sendMessageRequest struct {
	Content     string `json:"content"`
	ContentType int    `json:"content_type"`
}

// batchSendRequest is the JSON body for POST /api/v1/messages/batch.
type batchSendRequest struct {
	ConversationIDs []string `json:"conversation_ids"`
	Content         string   `json:"content"`
	ContentType     int      `json:"content_type"`
}

// batchSendResult is one entry in the batch send response.
type batchSendResult struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

// quickReplyRequest is the JSON body for quick reply create/update.
type quickReplyRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	IsShared bool   `json:"is_shared"`
}

// listResponse wraps a paginated conversation listing.
type listResponse struct {
	Conversations []*store.Conversation `json:"conversations"`
	Total         int                   `json:"total"`
	Page          int                   `json:"page"`
	PageSize      int                   `json:"page_size"`
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request, operatorID string) {
	q := r.URL.Query()
	filter := store.ConversationFilter{
		Status:   q.Get("status"),
		Operator: q.Get("operator"),
		UserID:   q.Get("user_id"),
		SortBy:   q.Get("sort_by"),
	}
	if v := q.Get("has_unread"); v != "" {
		hasUnread := v == "true" || v == "1"
		filter.HasUnread = &hasUnread
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	if filter.Page < 1 {
		filter.Page = 1
	}
	filter.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	convs, total, err := s.store.ListConversations(r.Context(), filter)
	if err != nil {
		s.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{
		Conversations: convs,
		Total:         total,
		Page:          filter.Page,
		PageSize:      filter.PageSize,
	})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request, operatorID string) {
	conv, err := s.store.GetConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request, operatorID string) {
	conv, err := s.coord.Assign(r.Context(), r.PathValue("id"), operatorID)
	if err != nil {
		s.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request, operatorID string) {
	conv, err := s.coord.Release(r.Context(), r.PathValue("id"), operatorID)
	if err != nil {
		s.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request, operatorID string) {
	conv, err := s.coord.Resolve(r.Context(), r.PathValue("id"), operatorID)
	if err != nil {
		s.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request, operatorID string) {
	conv, err := s.coord.Close(r.Context(), r.PathValue("id"), operatorID)
	if err != nil {
		s.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleReopen(w http.ResponseWriter, r *http.Request, operatorID string) {
	conv, err := s.coord.Reopen(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request, operatorID string) {
	if err := s.store.MarkRead(r.Context(), r.PathValue("id")); err != nil {
		s.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, operatorID string) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	out, err := s.coord.SendMessage(r.Context(), r.PathValue("id"), operatorID, req.Content, req.ContentType)
	if err != nil {
		// A stored-but-undelivered message is reported with its failed state
		if out != nil {
			writeJSON(w, http.StatusBadGateway, out)
			return
		}
		s.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleListOutbound(w http.ResponseWriter, r *http.Request, operatorID string) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 200 {
		limit = 50
	}
	msgs, err := s.store.ListOutbound(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleBatchSend(w http.ResponseWriter, r *http.Request, operatorID string) {
	var req batchSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" || len(req.ConversationIDs) == 0 {
		writeError(w, http.StatusBadRequest, "content and conversation_ids are required")
		return
	}

	results := s.coord.BatchSend(r.Context(), req.ConversationIDs, operatorID, req.Content, req.ContentType)
	out := make([]batchSendResult, 0, len(results))
	for _, res := range results {
		entry := batchSendResult{
			ConversationID: res.ConversationID,
			MessageID:      res.MessageID,
		}
		if res.Err != nil {
			entry.Error = res.Err.Error()
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (s *Server) handleListQuickReplies(w http.ResponseWriter, r *http.Request, operatorID string) {
	includeShared := r.URL.Query().Get("include_shared") != "false"
	replies, err := s.store.ListQuickReplies(r.Context(), operatorID, includeShared)
	if err != nil {
		s.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quick_replies": replies})
}

func (s *Server) handleCreateQuickReply(w http.ResponseWriter, r *http.Request, operatorID string) {
	var req quickReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "title and content are required")
		return
	}

	now := time.Now()
	reply := &store.QuickReply{
		OperatorID: operatorID,
		Title:      req.Title,
		Content:    req.Content,
		IsShared:   req.IsShared,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateQuickReply(r.Context(), reply); err != nil {
		s.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reply)
}

func (s *Server) handleUpdateQuickReply(w http.ResponseWriter, r *http.Request, operatorID string) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid quick reply id")
		return
	}

	var req quickReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := s.store.GetQuickReply(r.Context(), id)
	if err != nil {
		s.writeCoordinatorError(w, err)
		return
	}
	if reply.OperatorID != operatorID {
		writeError(w, http.StatusForbidden, "not your quick reply")
		return
	}

	if req.Title != "" {
		reply.Title = req.Title
	}
	if req.Content != "" {
		reply.Content = req.Content
	}
	reply.IsShared = req.IsShared
	reply.UpdatedAt = time.Now()

	if err := s.store.UpdateQuickReply(r.Context(), reply); err != nil {
		s.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleDeleteQuickReply(w http.ResponseWriter, r *http.Request, operatorID string) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid quick reply id")
		return
	}
	if err := s.store.DeleteQuickReply(r.Context(), id, operatorID); err != nil {
		s.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleUseQuickReply(w http.ResponseWriter, r *http.Request, operatorID string) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid quick reply id")
		return
	}
	if err := s.store.IncrementQuickReplyUsage(r.Context(), id); err != nil {
		s.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
