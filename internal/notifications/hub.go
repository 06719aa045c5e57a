// Package notifications delivers catalog activity to WebSocket clients.
package notifications

import (
	"context"
	"errors"
	"sync"

	"github.com/gofiber/websocket/v2"

	"github.com/morroware/FEC-STL-sub000/internal/observability"
)

const (
	// Max connections per signed-in user
	maxConnsPerUser = 8
	// Max total connections
	maxTotalConns = 10000
)

var (
	ErrServerFull  = errors.New("server connection limit reached")
	ErrUserLimit   = errors.New("user connection limit reached")
	ErrHubShutdown = errors.New("activity hub is shut down")
)

// Hub fans activity events out to every connected viewer.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	perUser map[string]int
	closed  bool
	log     *observability.WSLogger
}

// NewHub creates an empty activity hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		perUser: make(map[string]int),
		log:     observability.NewWSLogger("activity"),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "activity hub" }

// Register adds a connection. Anonymous viewers pass an empty userID and
// only count against the global limit.
func (h *Hub) Register(userID string, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubShutdown
	}
	if len(h.clients) >= maxTotalConns {
		return nil, ErrServerFull
	}
	if userID != "" && h.perUser[userID] >= maxConnsPerUser {
		return nil, ErrUserLimit
	}

	client := newClient(h, conn, userID)
	h.clients[client] = struct{}{}
	if userID != "" {
		h.perUser[userID]++
	}
	observability.ActivityConnections.Inc()
	h.log.LogConnect(context.Background(), userID)
	return client, nil
}

// UnregisterClient removes a client and ends its send side. Safe to call twice.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	if client.UserID != "" {
		if h.perUser[client.UserID]--; h.perUser[client.UserID] <= 0 {
			delete(h.perUser, client.UserID)
		}
	}
	client.close()
	observability.ActivityConnections.Dec()
	h.log.LogDisconnect(context.Background(), client.UserID, "unregistered")
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastAll sends message to every connected client.
func (h *Hub) BroadcastAll(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.TrySend(message)
	}
}

// StartWiring subscribes to the Redis activity channel and forwards every
// event to the connected clients.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartActivitySubscriber(ctx, func(payload string) {
		h.BroadcastAll([]byte(payload))
	})
}

// Shutdown drops every client. Each write loop sends a going-away frame
// and closes its connection.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	for client := range h.clients {
		client.close()
		observability.ActivityConnections.Dec()
		h.log.LogDisconnect(ctx, client.UserID, "shutdown")
	}
	h.clients = make(map[*Client]struct{})
	h.perUser = make(map[string]int)
	return nil
}
