package ws

import (
	"encoding/json"
	"sync"

	"github.com/fathima-sithara/classroom-chat/internal/events"
	"go.uber.org/zap"
)

// Hub tracks which local connections listen on which topic. A topic is a
// chat id or a user id.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Client]struct{}
	log    *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{topics: make(map[string]map[*Client]struct{}), log: log}
}

func (h *Hub) Subscribe(topic string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.topics[topic]
	if !ok {
		set = make(map[*Client]struct{})
		h.topics[topic] = set
	}
	set[c] = struct{}{}
	c.topics[topic] = struct{}{}
}

func (h *Hub) Unsubscribe(topic string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(topic, c)
}

func (h *Hub) unsubscribeLocked(topic string, c *Client) {
	if set, ok := h.topics[topic]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.topics, topic)
		}
	}
	delete(c.topics, topic)
}

// Remove drops c from every topic.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic := range c.topics {
		h.unsubscribeLocked(topic, c)
	}
}

// Subscribers reports how many local clients listen on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Deliver sends ev to every local subscriber of its topic. Slow clients whose
// buffer is full miss the event.
func (h *Hub) Deliver(ev events.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		h.log.Warn("encode event", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.topics[ev.Topic] {
		select {
		case c.send <- b:
		default:
			h.log.Debug("dropping event for slow client", zap.String("user_id", c.userID), zap.String("topic", ev.Topic))
		}
	}
}
