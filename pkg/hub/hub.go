// Package hub fans state-feed lines out to websocket watchers using the
// channel-based broadcast pattern. The serve process owns one hub; every
// /ws/state client hangs off it.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Hub maintains the set of active watchers and broadcasts JSON lines to
// them. The client map belongs to the Run goroutine; the mutex only
// covers the count reads from outside.
type Hub struct {
	name   string
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	running    atomic.Bool
}

// New creates a hub. Run must be started before clients attach.
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run pumps registrations and broadcasts until the context ends, then
// hangs up on every watcher. Call it in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer h.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			close(h.done)
			h.logger.Info("state hub stopped", "name", h.name)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("watcher connected", "name", h.name, "total", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("watcher disconnected", "name", h.name, "remaining", count)

		case data := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// The watcher stopped draining; cut it loose
					// rather than stall the feed.
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("dropped slow watcher", "name", h.name)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues one pre-encoded JSON line for every watcher. A full
// queue drops the line; state lines supersede each other anyway.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("broadcast queue full, dropping line", "name", h.name)
	}
}

// BroadcastJSON encodes and broadcasts one state line.
func (h *Hub) BroadcastJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// ClientCount returns the number of attached watchers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// IsRunning reports whether the Run loop is live.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}
