package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// UserIDFunc extracts the authenticated user id from a request, if any.
type UserIDFunc func(r *http.Request) string

// Handler streams hub events as Server-Sent Events.
// The topic is taken from the "topic" query parameter and defaults to
// book availability.
type Handler struct {
	hub    *Hub
	logger *slog.Logger
	userID UserIDFunc
}

// NewHandler creates a new SSE Handler. userID may be nil.
func NewHandler(hub *Hub, userID UserIDFunc, logger *slog.Logger) *Handler {
	return &Handler{
		hub:    hub,
		logger: logger,
		userID: userID,
	}
}

// ServeHTTP handles the SSE connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.Context().Err() != nil {
		return
	}

	topic := r.URL.Query().Get("topic")
	if topic == "" {
		topic = TopicBookAvailability
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)

	if err := rc.Flush(); err != nil {
		h.logger.Error("failed to flush headers", slog.String("error", err.Error()))
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var userID string
	if h.userID != nil {
		userID = h.userID(r)
	}

	sub, err := h.hub.Subscribe(topic, userID)
	if err != nil {
		h.logger.Error("failed to register subscriber", slog.String("error", err.Error()))
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}
	defer h.hub.Unsubscribe(sub.ID)

	subLogger := h.logger.With(slog.String("subscriber_id", sub.ID))

	if err := h.sendEvent(w, rc, "connected", map[string]string{
		"subscriber_id": sub.ID,
		"topic":         topic,
	}); err != nil {
		subLogger.Warn("failed to send initial connection message", slog.String("error", err.Error()))
		return
	}

	ctx := r.Context()
	for {
		select {
		case event := <-sub.Events:
			if err := h.sendEvent(w, rc, string(event.Type), event); err != nil {
				subLogger.Info("client disconnected during send")
				return
			}

		case <-sub.Done:
			subLogger.Info("subscriber closed by hub")
			return

		case <-ctx.Done():
			subLogger.Debug("client context canceled")
			return
		}
	}
}

// sendEvent writes one SSE frame and flushes it.
func (h *Handler) sendEvent(w http.ResponseWriter, rc *http.ResponseController, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		return err
	}

	if err := rc.Flush(); err != nil {
		return err
	}

	// Reset after each successful write so a stuck client cannot hold the connection.
	if err := rc.SetWriteDeadline(time.Now().Add(60 * time.Second)); err != nil {
		h.logger.Debug("failed to set write deadline", slog.String("error", err.Error()))
	}

	return nil
}
