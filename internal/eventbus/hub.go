package eventbus

import (
	"context"
	"sync"

	"github.com/vk/calcgrid/internal/ctxlog"
)

// DefaultBuffer is the subscription buffer used when none is given.
const DefaultBuffer = 64

// Hub fans messages out to in-process subscribers of a document.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan Message
}

var _ Publisher = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]chan Message)}
}

// Subscribe registers for the messages of a document. The returned function
// cancels the subscription and closes the channel; it may be called more
// than once.
func (h *Hub) Subscribe(documentID string, buffer int) (<-chan Message, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Message, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	if h.subs[documentID] == nil {
		h.subs[documentID] = make(map[int]chan Message)
	}
	h.subs[documentID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[documentID], id)
			if len(h.subs[documentID]) == 0 {
				delete(h.subs, documentID)
			}
			close(ch)
		})
	}
}

// Subscribers returns how many subscriptions a document has.
func (h *Hub) Subscribers(documentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[documentID])
}

// Publish delivers msg to every subscriber of its document without blocking.
// A subscriber whose buffer is full misses the message.
func (h *Hub) Publish(ctx context.Context, msg Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs[msg.DocumentID] {
		select {
		case ch <- msg:
		default:
			ctxlog.FromContext(ctx).Warn("Subscriber is not keeping up; dropping message.",
				"document", msg.DocumentID, "subscriber", id)
		}
	}
	return nil
}
