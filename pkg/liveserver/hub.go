package liveserver

import (
	"context"
	"sync"
)

// Client represents a WebSocket subscriber connection
type Client struct {
	id     string
	label  string
	send   chan Message
	mu     sync.Mutex
	closed bool
}

// NewClient creates a new client. The label is the caller-supplied
// identifier from the upgrade path, used only for echo and logging.
func NewClient(id, label string) *Client {
	return &Client{
		id:    id,
		label: label,
		send:  make(chan Message, 256), // Buffered to prevent blocking
	}
}

// ID returns the internal client identity.
func (c *Client) ID() string { return c.id }

// Label returns the caller-supplied identifier.
func (c *Client) Label() string { return c.label }

// Send sends a message to the client (non-blocking)
func (c *Client) Send(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- msg:
		return true
	default:
		// Channel full, client is slow
		return false
	}
}

// GetSendChan returns the send channel for reading
func (c *Client) GetSendChan() <-chan Message {
	return c.send
}

// Close closes the client
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub manages the subscriber set and performs ordered fan-out of
// messages. The set is mutated only through the register/unregister
// channels; broadcast iterates a snapshot copy so a connect or
// disconnect can never race an in-flight delivery.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Broadcast message to all clients
	broadcast chan Message

	// Register client
	register chan *Client

	// Unregister client
	unregister chan *Client

	// Mutex for client map
	mu sync.RWMutex

	// Logger (optional)
	logger Logger
}

// Logger is a simple logging interface
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// NewHub creates a new Hub
func NewHub(logger Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// Shutdown: close all clients
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			if h.logger != nil {
				h.logger.Info("Client registered", "client_id", client.id, "label", client.label, "total_clients", h.ClientCount())
			}

		case client := <-h.unregister:
			// Idempotent: unregistering an absent client is a no-op.
			h.mu.Lock()
			removed := false
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
				removed = true
			}
			h.mu.Unlock()
			if removed && h.logger != nil {
				h.logger.Info("Client unregistered", "client_id", client.id, "total_clients", h.ClientCount())
			}

		case message := <-h.broadcast:
			h.mu.RLock()
			// Copy clients to avoid holding lock during broadcast
			clientList := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clientList = append(clientList, client)
			}
			h.mu.RUnlock()

			// Deliver to all clients (outside lock). One failing
			// subscriber never aborts delivery to the rest.
			var failed []*Client
			for _, client := range clientList {
				if !client.Send(message) {
					failed = append(failed, client)
				}
			}
			// Evict directly: Run is the only receiver of the
			// unregister channel, so sending to it from here
			// would never be drained.
			for _, client := range failed {
				h.evict(client)
			}
		}
	}
}

// Register registers a client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister unregisters a client; safe to call more than once.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast broadcasts a message to all clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
		// Success
	default:
		// Broadcast channel full, log warning
		websocketDroppedMessagesTotal.WithLabelValues("broadcast_queue_full").Inc()
		if h.logger != nil {
			h.logger.Warn("Broadcast channel full, dropping message", "kind", msg.Kind)
		}
	}
}

// SendTo unicasts a message to one client, with the same failure
// isolation as Broadcast: a failed send evicts only that client.
func (h *Hub) SendTo(client *Client, msg Message) bool {
	if client.Send(msg) {
		return true
	}
	h.evict(client)
	return false
}

// evict removes a client whose send buffer is full or closed. It
// mutates the set directly because the unregister channel is drained
// by Run, and the broadcast delivery path runs inside Run itself.
func (h *Hub) evict(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		client.Close()
	}
	h.mu.Unlock()
	if ok {
		websocketDroppedMessagesTotal.WithLabelValues("slow_subscriber").Inc()
		if h.logger != nil {
			h.logger.Warn("Client evicted, send buffer full", "client_id", client.id, "label", client.label)
		}
	}
}

// ClientCount returns the current number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
