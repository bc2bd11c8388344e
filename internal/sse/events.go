// Package sse fans out real-time events to subscribed clients over
// Server-Sent Events and WebSocket connections.
package sse

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TopicBookAvailability is the channel-layer group every availability
// subscriber joins.
const TopicBookAvailability = "book_availability"

// EventType represents the type of an Event.
type EventType string

const (
	// EventBookAvailable is published when a returned book is back on the shelf.
	EventBookAvailable EventType = "book_available"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event is a message delivered to every subscriber of Topic.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Topic     string    `json:"topic"`
	Message   string    `json:"message"`
	BookID    string    `json:"book_id,omitempty"`
}

// WireMessage is the frame pushed to WebSocket subscribers.
type WireMessage struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

// Wire returns the client-facing frame for e.
func (e Event) Wire() WireMessage {
	return WireMessage{Type: e.Type, Message: e.Message}
}

// NewBookAvailableEvent creates the event announcing that a book can be borrowed again.
func NewBookAvailableEvent(bookID, title string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      EventBookAvailable,
		Topic:     TopicBookAvailability,
		Message:   fmt.Sprintf("The book '%s' was returned and is now available.", title),
		BookID:    bookID,
		Timestamp: time.Now().UTC(),
	}
}

// NewHeartbeatEvent creates a heartbeat event. Heartbeats carry no topic and
// reach every subscriber.
func NewHeartbeatEvent() Event {
	return Event{
		Type:      EventHeartbeat,
		Timestamp: time.Now().UTC(),
	}
}
