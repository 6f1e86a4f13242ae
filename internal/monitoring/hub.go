package monitoring

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/nonprofit-cli/internal/model"
)

// Event types published by the hub.
const (
	EventProgress = "progress"
	EventFinished = "finished"
)

// Event is one message on the /events stream.
type Event struct {
	ID    string              `json:"id"`
	Type  string              `json:"type"`
	At    time.Time           `json:"at"`
	Stats model.StatsSnapshot `json:"stats"`
}

// Hub fans run statistics out to stream subscribers and remembers the
// latest snapshot. Slow subscribers miss events rather than block the run.
type Hub struct {
	mu      sync.Mutex
	clients map[chan Event]struct{}
	latest  *Event
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[chan Event]struct{})}
}

// Subscribe registers a subscriber. The returned function unsubscribes and
// closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish sends an event to every subscriber.
func (h *Hub) Publish(typ string, snap model.StatsSnapshot) Event {
	evt := Event{ID: uuid.NewString(), Type: typ, At: time.Now().UTC(), Stats: snap}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = &evt
	for ch := range h.clients {
		select {
		case ch <- evt:
		default:
		}
	}
	return evt
}

// Latest returns the most recent event, if any.
func (h *Hub) Latest() (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return Event{}, false
	}
	return *h.latest, true
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (e Event) encode() []byte {
	b, _ := json.Marshal(e)
	return b
}
