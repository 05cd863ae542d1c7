package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/protocol"
	"github.com/teslashibe/go-gaze/pkg/stream"
)

// Stats contains hub counters
type Stats struct {
	Clients     int    `json:"clients"`
	Broadcasts  uint64 `json:"broadcasts"`
	Delivered   uint64 `json:"delivered"`
	SlowDropped uint64 `json:"slow_dropped"`
	Overflow    uint64 `json:"overflow"`
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Name for logging
	name   string
	logger *slog.Logger

	// Registered clients
	clients map[*Client]bool

	// Inbound messages to broadcast
	broadcast chan Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	// Mutex for client count (read-only access from outside)
	mu sync.RWMutex

	// Running state
	running atomic.Bool

	broadcasts  atomic.Uint64
	delivered   atomic.Uint64
	slowDropped atomic.Uint64
	overflow    atomic.Uint64
}

// New creates a new Hub. A nil logger uses the global logger.
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = log.L()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("hub", name),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop until ctx is done.
// This should be called in a goroutine
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client connected", "user_filter", client.filter.UserID, "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client disconnected", "clients", count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.filter.allows(message) {
					continue
				}
				select {
				case client.send <- message:
					h.delivered.Add(1)
				default:
					// Client's buffer is full - they're too slow
					close(client.send)
					delete(h.clients, client)
					h.slowDropped.Add(1)
					h.logger.Warn("dropped slow client", "user_filter", client.filter.UserID)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a message for every matching client
func (h *Hub) Broadcast(msg Message) {
	h.broadcasts.Add(1)
	select {
	case h.broadcast <- msg:
	default:
		// Broadcast channel full - drop message
		h.overflow.Add(1)
	}
}

// Feed forwards outbound gaze events from bus to websocket clients until
// ctx is done.
func (h *Hub) Feed(ctx context.Context, bus *stream.Bus) error {
	id := "hub-" + h.name + "-" + uuid.NewString()
	ch := make(chan stream.Message, 1024)
	if err := bus.Subscribe(id, "", ch); err != nil {
		return err
	}
	defer bus.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-ch:
			msg, err := protocol.FromStream(m)
			if err != nil {
				h.logger.Debug("skipping stream message", "kind", m.Kind, "error", err)
				continue
			}
			data, err := msg.Bytes()
			if err != nil {
				continue
			}
			h.Broadcast(NewMessage(m.UserID, string(m.Kind), data))
		}
	}
}

func (h *Hub) attach(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) setFilter(c *Client, f Filter) {
	h.mu.Lock()
	c.filter = f
	h.mu.Unlock()
	h.logger.Debug("subscriber filter changed", "user_filter", f.UserID, "kinds", f.Kinds)
}

func (h *Hub) detach(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsRunning returns whether the hub is running
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Stats returns hub counters
func (h *Hub) Stats() Stats {
	return Stats{
		Clients:     h.ClientCount(),
		Broadcasts:  h.broadcasts.Load(),
		Delivered:   h.delivered.Load(),
		SlowDropped: h.slowDropped.Load(),
		Overflow:    h.overflow.Load(),
	}
}
