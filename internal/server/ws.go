// ABOUTME: WebSocket endpoint streaming fan-out events to operator sessions
// ABOUTME: Handles subscribe/unsubscribe/heartbeat frames and keeps presence current

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsReadLimit     = 4096
	wsReadDeadline  = 60 * time.Second
	wsWriteDeadline = 5 * time.Second
	wsPingInterval  = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Operators connect from the support console behind the same proxy
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientFrame is a control message from the operator console.
type clientFrame struct {
	Type           string `json:"type"` // subscribe, unsubscribe, watch_list, unwatch_list, heartbeat
	ConversationID string `json:"conversation_id,omitempty"`
}

// serverFrame wraps outgoing control responses. Events go out as raw
// fanout.Event JSON.
type serverFrame struct {
	Type      string   `json:"type"`
	SessionID string   `json:"session_id,omitempty"`
	Lost      []string `json:"lost,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	operatorID := r.Header.Get(operatorHeader)
	if operatorID == "" {
		operatorID = r.URL.Query().Get("operator_id")
	}
	if operatorID == "" {
		writeError(w, http.StatusUnauthorized, "missing operator identity")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	session := s.hub.Connect(operatorID)
	events := s.deliverer.Attach(session.ID)
	defer func() {
		s.deliverer.Detach(session.ID)
		s.hub.Disconnect(session.ID)
	}()

	s.logger.Info("websocket connected",
		"session_id", session.ID,
		"operator_id", operatorID)

	// Writer owns the connection's write side: events, control replies,
	// and pings all funnel through replies/events here.
	replies := make(chan serverFrame, 8)
	done := make(chan struct{})

	go s.wsReader(r.Context(), conn, session.ID, operatorID, replies, done)

	// Session handshake, so the console knows its session ID
	if err := writeFrame(conn, serverFrame{Type: "connected", SessionID: session.ID}); err != nil {
		return
	}

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case frame := <-replies:
			if err := writeFrame(conn, frame); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// wsReader consumes control frames until the connection drops. Each frame
// refreshes the session heartbeat; an explicit heartbeat frame additionally
// renews the operator's conversation locks.
func (s *Server) wsReader(ctx context.Context, conn *websocket.Conn, sessionID, operatorID string, replies chan<- serverFrame, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
		_ = s.hub.Touch(sessionID)
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
		_ = s.hub.Touch(sessionID)

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.reply(replies, serverFrame{Type: "error", Error: "invalid frame"})
			continue
		}

		switch frame.Type {
		case "subscribe":
			if err := s.hub.Subscribe(sessionID, frame.ConversationID); err != nil {
				s.reply(replies, serverFrame{Type: "error", Error: err.Error()})
			}
		case "unsubscribe":
			if err := s.hub.Unsubscribe(sessionID, frame.ConversationID); err != nil {
				s.reply(replies, serverFrame{Type: "error", Error: err.Error()})
			}
		case "watch_list":
			_ = s.hub.WatchList(sessionID, true)
		case "unwatch_list":
			_ = s.hub.WatchList(sessionID, false)
		case "heartbeat":
			lost, err := s.coord.Heartbeat(ctx, operatorID)
			if err != nil {
				s.reply(replies, serverFrame{Type: "error", Error: err.Error()})
				continue
			}
			s.reply(replies, serverFrame{Type: "heartbeat_ack", Lost: lost})
		default:
			s.reply(replies, serverFrame{Type: "error", Error: "unknown frame type: " + frame.Type})
		}
	}
}

// reply hands a control frame to the writer loop. It waits up to the write
// deadline for buffer space so heartbeat acks and errors are not lost behind
// a burst of events; a frame still undeliverable by then is logged and
// dropped rather than wedging the reader.
func (s *Server) reply(replies chan<- serverFrame, frame serverFrame) {
	timer := time.NewTimer(wsWriteDeadline)
	defer timer.Stop()
	select {
	case replies <- frame:
	case <-timer.C:
		s.logger.Warn("dropping control reply",
			"type", frame.Type)
	}
}

func writeFrame(conn *websocket.Conn, frame serverFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
	return conn.WriteJSON(frame)
}
