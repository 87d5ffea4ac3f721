// ABOUTME: HTTP handlers for the widget surface: SSE stream, websocket, send API
// ABOUTME: One discrete {"text":...} event per message, no batching

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatseam/chatseam/internal/session"
)

// SendRequest is the JSON request body for POST /api/send.
type SendRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// SendResponse is the JSON response for POST /api/send.
type SendResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StatsResponse is the JSON response for GET /api/stats.
type StatsResponse struct {
	LinkedSessions  int `json:"linked_sessions"`
	LiveSessions    int `json:"live_sessions"`
	LiveSubscribers int `json:"live_subscribers"`
}

// wsWriteTimeout bounds each websocket write so a stalled client cannot
// wedge the pump.
const wsWriteTimeout = 10 * time.Second

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The widget is embedded on arbitrary customer sites.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStream handles GET /api/stream?session_id=... requests.
// It subscribes the connection to the session's live updates and writes
// one SSE data frame per relayed event until the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Request-context cancellation unsubscribes, so a closed tab is
	// deregistered before the handler returns.
	sub := s.registry.Subscribe(r.Context(), sessionID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Initial frame so the widget knows the stream is live.
	s.writeSSEData(w, session.Event{Text: "connected"})
	flusher.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case ev, open := <-sub.Events():
			if !open {
				return
			}
			s.writeSSEData(w, ev)
			flusher.Flush()

		case <-heartbeat.C:
			// Comment frame keeps proxies from timing out the stream.
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEData writes a single data-only SSE frame. The widget listens
// with EventSource.onmessage, so frames carry no event name.
func (s *Server) writeSSEData(w http.ResponseWriter, ev session.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// handleWebSocket handles GET /api/ws?session_id=... requests, the
// websocket flavor of the live-update stream.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	sub := s.registry.Subscribe(r.Context(), sessionID)
	defer s.registry.Unsubscribe(sessionID, sub.ID())
	defer conn.Close()

	// Reader pump: the widget never sends data, but reading is how the
	// close handshake and pongs are observed.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(session.Event{Text: "connected"}); err != nil {
		return
	}

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-readerDone:
			return

		case <-r.Context().Done():
			return

		case ev, open := <-sub.Events():
			if !open {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}

		case <-heartbeat.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

// handleSend handles POST /api/send requests. It resolves the session's
// recipient and performs the Graph API send; a session with no hand-off
// yet is rejected without any platform call.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req, err := parseSendRequest(r.Body)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	recipient, err := s.relay.DeliverOutbound(req.SessionID)
	if errors.Is(err, session.ErrUnlinked) {
		s.writeJSON(w, http.StatusBadRequest, SendResponse{
			Success: false,
			Error:   "No recipient for this session. Ask the visitor to continue in Messenger first.",
		})
		return
	}

	id, err := s.sender.SendText(r.Context(), recipient, req.Text)
	if err != nil {
		s.logger.Error("platform send failed", "session", req.SessionID, "error", err)
		s.writeJSON(w, http.StatusBadGateway, SendResponse{
			Success: false,
			Error:   "Failed to send message.",
		})
		return
	}

	s.writeJSON(w, http.StatusOK, SendResponse{Success: true, ID: id})
}

// parseSendRequest parses and validates a SendRequest from the given reader.
func parseSendRequest(r io.Reader) (*SendRequest, error) {
	var req SendRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}

	if req.SessionID == "" {
		return nil, errors.New("session_id is required")
	}
	if req.Text == "" {
		return nil, errors.New("text is required")
	}

	return &req, nil
}

// handleStats returns linked-session and live-subscriber counts.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, StatsResponse{
		LinkedSessions:  s.links.Len(),
		LiveSessions:    s.registry.Sessions(),
		LiveSubscribers: s.registry.Total(),
	})
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 once the server is accepting connections.
// Nothing else gates readiness: the core has no dependencies to wait on.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// writeJSON writes a JSON response with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
