// ABOUTME: HTTP server wiring for the operator API and WebSocket endpoint
// ABOUTME: Routes REST operations to the coordinator and registry, streams events over /ws

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/opdesk/supportd/internal/coordinator"
	"github.com/opdesk/supportd/internal/fanout"
	"github.com/opdesk/supportd/internal/presence"
	"github.com/opdesk/supportd/internal/store"
)

// operatorHeader carries the authenticated operator identity. Authentication
// itself happens at the edge proxy; this service trusts the header.
const operatorHeader = "X-Operator-ID"

// Server exposes the operator-facing HTTP API.
type Server struct {
	coord     *coordinator.Coordinator
	store     store.Store
	hub       *presence.Hub
	deliverer *fanout.Deliverer
	logger    *slog.Logger
	httpSrv   *http.Server
}

// New creates a server listening on addr. Pass nil logger for default.
func New(addr string, coord *coordinator.Coordinator, st store.Store, hub *presence.Hub, deliverer *fanout.Deliverer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		coord:     coord,
		store:     st,
		hub:       hub,
		deliverer: deliverer,
		logger:    logger.With("component", "server"),
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/v1/conversations", s.requireOperator(s.handleListConversations))
	mux.HandleFunc("GET /api/v1/conversations/{id}", s.requireOperator(s.handleGetConversation))
	mux.HandleFunc("POST /api/v1/conversations/{id}/assign", s.requireOperator(s.handleAssign))
	mux.HandleFunc("POST /api/v1/conversations/{id}/release", s.requireOperator(s.handleRelease))
	mux.HandleFunc("POST /api/v1/conversations/{id}/resolve", s.requireOperator(s.handleResolve))
	mux.HandleFunc("POST /api/v1/conversations/{id}/close", s.requireOperator(s.handleClose))
	mux.HandleFunc("POST /api/v1/conversations/{id}/reopen", s.requireOperator(s.handleReopen))
	mux.HandleFunc("POST /api/v1/conversations/{id}/read", s.requireOperator(s.handleMarkRead))
	mux.HandleFunc("POST /api/v1/conversations/{id}/messages", s.requireOperator(s.handleSendMessage))
	mux.HandleFunc("GET /api/v1/conversations/{id}/messages", s.requireOperator(s.handleListOutbound))
	mux.HandleFunc("POST /api/v1/messages/batch", s.requireOperator(s.handleBatchSend))

	mux.HandleFunc("GET /api/v1/quick-replies", s.requireOperator(s.handleListQuickReplies))
	mux.HandleFunc("POST /api/v1/quick-replies", s.requireOperator(s.handleCreateQuickReply))
	mux.HandleFunc("PUT /api/v1/quick-replies/{id}", s.requireOperator(s.handleUpdateQuickReply))
	mux.HandleFunc("DELETE /api/v1/quick-replies/{id}", s.requireOperator(s.handleDeleteQuickReply))
	mux.HandleFunc("POST /api/v1/quick-replies/{id}/use", s.requireOperator(s.handleUseQuickReply))

	mux.HandleFunc("GET /ws", s.handleWebSocket)

	return mux
}

// Start begins serving. Blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler returns the full route handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireOperator rejects requests without an operator identity and passes
// the identity through to the handler.
func (s *Server) requireOperator(next func(w http.ResponseWriter, r *http.Request, operatorID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		operatorID := r.Header.Get(operatorHeader)
		if operatorID == "" {
			writeError(w, http.StatusUnauthorized, "missing "+operatorHeader+" header")
			return
		}
		next(w, r, operatorID)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeCoordinatorError maps domain errors onto HTTP statuses.
func (s *Server) writeCoordinatorError(w http.ResponseWriter, err error) {
	var already *coordinator.AlreadyAssignedError
	switch {
	case errors.As(err, &already):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": already.Error(),
			"owner": already.Owner,
		})
	case errors.Is(err, coordinator.ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, coordinator.ErrLockExpired):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrStatusConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
