// Package server is the websocket transport: connection lifecycle, the
// one-time authentication exchange and fan-out of global results.
package server

import (
	"context"
	"sort"
	"sync"

	"originchats/pkg/logger"
)

// Hub maintains the set of active clients and fans packets out to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run processes registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	logger.Info("hub_started")
	defer logger.Info("hub_stopped")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.Debug("client_registered", "conn", client.session.ID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			logger.Debug("client_unregistered", "conn", client.session.ID)

		case packet := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if !client.session.Authenticated {
					continue
				}
				select {
				case client.send <- packet:
				default:
				}
			}
			h.mu.RUnlock()

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) { h.register <- client }

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(client *Client) { h.unregister <- client }

// Broadcast fans one encoded packet out to every authenticated client.
// Never blocks; the packet is dropped if the hub is saturated.
func (h *Hub) Broadcast(packet []byte) {
	select {
	case h.broadcast <- packet:
	default:
		logger.Warn("broadcast_dropped")
	}
}

// Online returns the sorted, deduplicated usernames behind authenticated
// connections. Implements the dispatcher's presence interface.
func (h *Hub) Online() []string {
	h.mu.RLock()
	seen := make(map[string]bool)
	for client := range h.clients {
		if client.session.Authenticated && client.session.Username != "" {
			seen[client.session.Username] = true
		}
	}
	h.mu.RUnlock()

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
