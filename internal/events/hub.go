package events

import (
	"sync"
)

// Event types emitted by the engine.
const (
	EventAchievement   = "achievement"
	EventMilestone     = "milestone"
	EventSyncStart     = "sync_start"
	EventSyncComplete  = "sync_complete"
	EventSyncError     = "sync_error"
	EventOfflineChange = "offline_change"
)

// Event is the message delivered to subscribers.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Hub fans events out to any number of independent subscribers (UI,
// logging, tests) without coupling them to the emitter.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe func. The channel is buffered; see Emit.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Event, 64)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
}

// Emit delivers an event to every subscriber. Delivery is non-blocking: a
// subscriber that stops draining its channel loses events rather than
// stalling the engine.
func (h *Hub) Emit(eventType string, data interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, ch := range h.subs {
		select {
		case ch <- Event{Type: eventType, Data: data}:
		default:
		}
	}
}

// Close tears the hub down, closing every subscriber channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
