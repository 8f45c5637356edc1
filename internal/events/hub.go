package events

import (
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Event is one published lifecycle or operation notification.
type Event struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	At        time.Time       `json:"at"`
	Data      json.RawMessage `json:"data"`
}

// Filter narrows what a subscriber or snapshot sees. Zero value matches all.
type Filter struct {
	SessionID string
	// TypePrefix matches event types such as "operation." or "session.".
	TypePrefix string
}

func (f Filter) match(ev Event) bool {
	if f.SessionID != "" && ev.SessionID != f.SessionID {
		return false
	}
	if f.TypePrefix != "" && !strings.HasPrefix(ev.Type, f.TypePrefix) {
		return false
	}
	return true
}

// SessionScoped is implemented by payloads that belong to a session.
type SessionScoped interface {
	EventSession() string
}

type subscriber struct {
	ch     chan Event
	filter Filter
}

// Hub is an in-memory pub/sub with a ring buffer so late clients can catch up.
type Hub struct {
	nextID atomic.Int64
	now    func() time.Time

	mu    sync.Mutex
	ring  []Event
	start int
	size  int

	subs      map[int]subscriber
	nextSubID int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	return &Hub{
		now:  time.Now,
		ring: make([]Event, capacity),
		subs: make(map[int]subscriber),
	}
}

// Publish records an event and fans it out. The session id is taken from a
// SessionScoped payload or a "session_id" map key.
func (h *Hub) Publish(eventType string, data any) {
	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	ev := Event{
		ID:        h.nextID.Add(1),
		Type:      eventType,
		SessionID: sessionOf(data),
		At:        h.now().UTC(),
		Data:      payload,
	}

	h.mu.Lock()
	h.pushLocked(ev)
	for _, s := range h.subs {
		if !s.filter.match(ev) {
			continue
		}
		// Slow consumers drop events rather than stall producers.
		select {
		case s.ch <- ev:
		default:
		}
	}
	h.mu.Unlock()
}

// Subscribe registers a listener. The returned cancel func closes the channel.
func (h *Hub) Subscribe(filter Filter) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, 128)
	h.subs[id] = subscriber{ch: ch, filter: filter}

	cancel := func() {
		h.mu.Lock()
		if s, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(s.ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// SnapshotSince returns buffered events with ID > lastID, oldest first.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	return h.Snapshot(lastID, Filter{})
}

// Snapshot is SnapshotSince restricted to events matching filter.
func (h *Hub) Snapshot(lastID int64, filter Filter) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if ev.ID > lastID && filter.match(ev) {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Hub) pushLocked(ev Event) {
	capacity := len(h.ring)
	if h.size < capacity {
		h.ring[(h.start+h.size)%capacity] = ev
		h.size++
		return
	}
	h.ring[h.start] = ev
	h.start = (h.start + 1) % capacity
}

func sessionOf(data any) string {
	switch v := data.(type) {
	case SessionScoped:
		return v.EventSession()
	case map[string]any:
		if id, ok := v["session_id"].(string); ok {
			return id
		}
	case map[string]string:
		return v["session_id"]
	}
	return ""
}
