package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/raqibtech/converse/internal/engine"
	"github.com/raqibtech/converse/internal/identity"
)

// wsTurnTimeout bounds how long a single turn may take before the
// connection gives up on it.
const wsTurnTimeout = 30 * time.Second

// WebSocketHandler serves the chat over a WebSocket: one JSON request
// frame in, one JSON reply frame out, repeated until the client hangs
// up. The session sticks to the connection after the first frame names
// it.
type WebSocketHandler struct {
	engine        *engine.Engine
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket chat handler.
func NewWebSocketHandler(eng *engine.Engine, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		engine:        eng,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

type wsError struct {
	Error string `json:"error"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	customerID := identity.CustomerIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("WebSocket chat connection", "customer_id", customerID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "customer_id", customerID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "conversation ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "customer_id", customerID)
		}
	}()

	ctx := r.Context()
	for {
		_, frame, err := ws.Read(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && websocket.CloseStatus(err) == -1 {
				slog.Debug("WebSocket read ended", "error", err, "customer_id", customerID)
			}
			return
		}

		var req chatRequest
		if err := json.Unmarshal(frame, &req); err != nil {
			h.writeJSON(ctx, ws, wsError{Error: "invalid message frame"})
			continue
		}
		req.Message = strings.TrimSpace(req.Message)
		if req.Message == "" || len(req.Message) > maxMessageLen {
			h.writeJSON(ctx, ws, wsError{Error: "message must be 1-2000 characters"})
			continue
		}
		if req.SessionID != "" {
			sessionID = req.SessionID
		}

		turnCtx, cancel := context.WithTimeout(ctx, wsTurnTimeout)
		reply, err := h.engine.HandleMessage(turnCtx, sessionID, customerID, req.Message)
		cancel()
		if err != nil {
			h.writeJSON(ctx, ws, wsError{Error: "failed to handle message"})
			continue
		}

		// Later frames without a session id continue this conversation.
		sessionID = reply.SessionID
		h.writeJSON(ctx, ws, reply)
	}
}

func (h *WebSocketHandler) writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) {
	blob, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal WebSocket reply", "error", err)
		return
	}
	if err := ws.Write(ctx, websocket.MessageText, blob); err != nil {
		slog.Debug("WebSocket write failed", "error", err)
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	return origin == h.allowedOrigin
}
