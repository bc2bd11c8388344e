package sse

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JoeAtEgypt/library-management/internal/id"
)

// Subscriber is one connected client listening on a topic.
type Subscriber struct {
	ConnectedAt time.Time
	Events      chan Event
	Done        chan struct{}
	ID          string
	Topic       string
	UserID      string
}

// HubStats is a snapshot of hub counters.
type HubStats struct {
	Subscribers int   `json:"subscribers"`
	Published   int64 `json:"published"`
	Dropped     int64 `json:"dropped"`
}

// Hub is an in-process pub/sub broker keyed by topic.
// Publish never blocks the caller; delivery to each subscriber is best-effort.
type Hub struct {
	subs              map[string]*Subscriber
	events            chan Event
	logger            *slog.Logger
	wg                sync.WaitGroup
	heartbeatInterval time.Duration
	mu                sync.RWMutex

	// Shutdown state - protected by shutdownMu
	shutdownMu sync.RWMutex
	shutdown   bool
	started    atomic.Bool

	published, dropped atomic.Int64
}

// NewHub creates a hub with a 1000-event buffer.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:              make(map[string]*Subscriber),
		events:            make(chan Event, 1000),
		logger:            logger,
		heartbeatInterval: 30 * time.Second,
	}
}

// SetHeartbeatInterval changes how often heartbeats are broadcast. Call before Start.
func (h *Hub) SetHeartbeatInterval(d time.Duration) {
	if d > 0 {
		h.heartbeatInterval = d
	}
}

// Start runs the broadcast loop until ctx is done or Shutdown closes the
// event channel. Call it once, in its own goroutine.
func (h *Hub) Start(ctx context.Context) {
	h.wg.Add(1)
	defer h.wg.Done()
	h.started.Store(true)

	h.logger.Info("event hub starting")

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-h.events:
			if !ok {
				h.closeAll()
				return
			}
			h.broadcast(event)

		case <-heartbeat.C:
			h.broadcast(NewHeartbeatEvent())

		case <-ctx.Done():
			h.logger.Info("event hub stopping")
			h.closeAll()
			return
		}
	}
}

// Shutdown stops accepting events, lets the loop drain what is buffered,
// and closes every subscriber.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.shutdownMu.Lock()
	if h.shutdown {
		h.shutdownMu.Unlock()
		return nil
	}
	h.shutdown = true
	close(h.events)
	h.shutdownMu.Unlock()

	if !h.started.Load() {
		for event := range h.events {
			h.broadcast(event)
		}
		h.closeAll()
		return nil
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("event hub drained")
		return nil
	case <-ctx.Done():
		h.logger.Warn("event hub drain timed out, some events may be lost")
		return ctx.Err()
	}
}

// Subscribe registers a subscriber on topic.
func (h *Hub) Subscribe(topic, userID string) (*Subscriber, error) {
	subID, err := id.Generate("sub")
	if err != nil {
		return nil, err
	}

	sub := &Subscriber{
		ID:          subID,
		Topic:       topic,
		UserID:      userID,
		Events:      make(chan Event, 100),
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	total := len(h.subs)
	h.mu.Unlock()

	h.logger.Info("subscriber connected",
		slog.String("subscriber_id", subID),
		slog.String("topic", topic),
		slog.String("user_id", userID),
		slog.Int("total_subscribers", total))
	return sub, nil
}

// Unsubscribe removes a subscriber and closes its channels. Unknown ids are ignored.
func (h *Hub) Unsubscribe(subID string) {
	h.mu.Lock()
	sub, ok := h.subs[subID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.subs, subID)
	total := len(h.subs)
	h.mu.Unlock()

	close(sub.Done)

	h.logger.Info("subscriber disconnected",
		slog.String("subscriber_id", subID),
		slog.Duration("duration", time.Since(sub.ConnectedAt)),
		slog.Int("total_subscribers", total))
}

// Publish queues event for every subscriber of topic. It returns at once;
// when the hub is stopped or its buffer is full the event is dropped.
func (h *Hub) Publish(topic string, event Event) {
	event.Topic = topic

	h.shutdownMu.RLock()
	defer h.shutdownMu.RUnlock()

	if h.shutdown {
		h.dropped.Add(1)
		return
	}

	select {
	case h.events <- event:
		h.published.Add(1)
	default:
		h.dropped.Add(1)
		h.logger.Error("event channel full, dropping event",
			slog.String("topic", topic),
			slog.String("event_type", string(event.Type)))
	}
}

// Count returns the number of subscribers on topic, or on all topics when topic is empty.
func (h *Hub) Count(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if topic == "" {
		return len(h.subs)
	}
	n := 0
	for _, sub := range h.subs {
		if sub.Topic == topic {
			n++
		}
	}
	return n
}

// Stats returns the current counters.
func (h *Hub) Stats() HubStats {
	return HubStats{
		Subscribers: h.Count(""),
		Published:   h.published.Load(),
		Dropped:     h.dropped.Load(),
	}
}

// broadcast delivers event to matching subscribers without blocking on slow ones.
func (h *Hub) broadcast(event Event) {
	var delivered, skipped int

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if event.Topic != "" && sub.Topic != event.Topic {
			continue
		}
		select {
		case sub.Events <- event:
			delivered++
		default:
			skipped++
			h.logger.Warn("dropped event for slow subscriber",
				slog.String("subscriber_id", sub.ID),
				slog.String("event_type", string(event.Type)))
		}
	}

	if event.Type != EventHeartbeat {
		h.logger.Debug("event broadcast",
			slog.String("topic", event.Topic),
			slog.String("event_type", string(event.Type)),
			slog.Group("stats",
				slog.Int("delivered", delivered),
				slog.Int("dropped", skipped)))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*Subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		close(sub.Done)
	}
	if len(subs) > 0 {
		h.logger.Info("closed all subscribers", slog.Int("count", len(subs)))
	}
}
