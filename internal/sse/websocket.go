package sse

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsMaxMessage = 512
)

// WebSocketHandler joins each connection to the book availability topic
// and pushes {"type","message"} frames until either side goes away.
// Inbound messages are read and discarded.
type WebSocketHandler struct {
	hub      *Hub
	logger   *slog.Logger
	userID   UserIDFunc
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a WebSocket endpoint. An empty allowedOrigins
// (or one containing "*") accepts any origin.
func NewWebSocketHandler(hub *Hub, allowedOrigins []string, userID UserIDFunc, logger *slog.Logger) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:    hub,
		logger: logger,
		userID: userID,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.ContainsFunc(allowed, func(o string) bool {
			return strings.EqualFold(o, origin)
		})
	}
}

// ServeHTTP upgrades the connection and runs its read and write loops.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	var userID string
	if h.userID != nil {
		userID = h.userID(r)
	}

	sub, err := h.hub.Subscribe(TopicBookAvailability, userID)
	if err != nil {
		h.logger.Error("failed to register subscriber", slog.String("error", err.Error()))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(wsWriteWait))
		return
	}
	defer h.hub.Unsubscribe(sub.ID)

	readerDone := make(chan struct{})
	go h.readLoop(conn, readerDone)

	h.writeLoop(conn, sub, readerDone)
}

// readLoop drains inbound frames so control messages (pong, close) are processed.
func (h *WebSocketHandler) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (h *WebSocketHandler) writeLoop(conn *websocket.Conn, sub *Subscriber, readerDone <-chan struct{}) {
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case event := <-sub.Events:
			if event.Type == EventHeartbeat {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(event.Wire()); err != nil {
				h.logger.Info("websocket client disconnected during send", slog.String("subscriber_id", sub.ID))
				return
			}

		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-sub.Done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteWait))
			return

		case <-readerDone:
			return
		}
	}
}
