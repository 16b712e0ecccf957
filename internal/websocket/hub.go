// internal/websocket/hub.go
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Hub fans notification pushes out to a seller's live connections. It is
// push-only: clients never send application messages, so there is no handler
// registry, just registration bookkeeping and delivery.
type Hub struct {
	// Registered clients by identity ID
	clients map[int64]map[*Client]bool
	mu      sync.RWMutex

	Register   chan *Client
	unregister chan *Client

	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]bool),
		Register:   make(chan *Client),
		unregister: make(chan *Client, 16),
		logger:     logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.identityID] == nil {
		h.clients[client.identityID] = make(map[*Client]bool)
	}
	h.clients[client.identityID][client] = true
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.clients[client.identityID]
	if !ok {
		return
	}
	if _, ok := conns[client]; !ok {
		return
	}

	delete(conns, client)
	close(client.send)
	if len(conns) == 0 {
		delete(h.clients, client.identityID)
	}
}

// PushToIdentity delivers a payload to every live connection of a user.
// Slow clients are skipped rather than blocking the caller.
func (h *Hub) PushToIdentity(identityID int64, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("failed to marshal websocket payload", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[identityID] {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("dropping websocket message for slow client",
				zap.Int64("identity_id", identityID),
			)
		}
	}
}

// TotalClients returns the number of live connections.
func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for identityID, conns := range h.clients {
		for client := range conns {
			close(client.send)
			client.conn.Close()
		}
		delete(h.clients, identityID)
	}
}
