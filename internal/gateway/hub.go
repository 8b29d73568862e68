// Package gateway pushes journal events and live prices to websocket clients.
package gateway

import (
	"log/slog"
	"sync"

	"github.com/Rahwulkumar/trading-journal/internal/metrics"
)

// Conn is a subscriber handle registered under a topic.
// Send must not block; Close must be safe to call more than once.
type Conn interface {
	Send(msg []byte) error
	Close() error
}

// Hub is the topic registry: topic -> set of live connections.
// A topic exists only while it has at least one connection.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[Conn]struct{}
	closed bool

	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewHub creates an empty registry.
func NewHub(m *metrics.Metrics, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		topics:  make(map[string]map[Conn]struct{}),
		metrics: m,
		log:     log.With(slog.String("component", "hub")),
	}
}

// Connect registers c under topic. It returns false once the hub is closed.
func (h *Hub) Connect(topic string, c Conn) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	set, ok := h.topics[topic]
	if !ok {
		set = make(map[Conn]struct{})
		h.topics[topic] = set
	}
	set[c] = struct{}{}
	conns, topics := h.countsLocked()
	h.mu.Unlock()

	h.metrics.SetRegistry(conns, topics)
	h.log.Debug("connected", "topic", topic, "connections", conns)
	return true
}

// Disconnect removes c from topic and drops the topic when it becomes empty.
// Unknown topics and handles are ignored.
func (h *Hub) Disconnect(topic string, c Conn) {
	h.mu.Lock()
	set, ok := h.topics[topic]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.topics, topic)
	}
	conns, topics := h.countsLocked()
	h.mu.Unlock()

	h.metrics.SetRegistry(conns, topics)
	h.log.Debug("disconnected", "topic", topic, "connections", conns)
}

// Broadcast offers msg to every connection under topic and returns how many accepted it.
// A failed send is logged and skipped; the connection stays registered until the
// transport reports it closed. An unknown topic is a no-op.
func (h *Hub) Broadcast(topic string, msg []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set, ok := h.topics[topic]
	if !ok {
		return 0
	}
	delivered := 0
	for c := range set {
		if err := c.Send(msg); err != nil {
			h.metrics.SendDropped()
			h.log.Warn("send failed", "topic", topic, "err", err)
			continue
		}
		delivered++
	}
	return delivered
}

// TopicCount returns the number of topics with at least one connection.
func (h *Hub) TopicCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics)
}

// ConnCount returns the number of connections under topic.
func (h *Hub) ConnCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Close closes every registered connection and rejects further Connects.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []Conn
	for _, set := range h.topics {
		for c := range set {
			all = append(all, c)
		}
	}
	h.topics = make(map[string]map[Conn]struct{})
	h.mu.Unlock()

	for _, c := range all {
		_ = c.Close()
	}
	h.metrics.SetRegistry(0, 0)
	h.log.Info("closed", "connections", len(all))
}

func (h *Hub) countsLocked() (conns, topics int) {
	for _, set := range h.topics {
		conns += len(set)
	}
	return conns, len(h.topics)
}
