package websocket

import (
	"encoding/json"
	"log"
	"sync"
)

// Hub maintains the set of connected dashboard clients and broadcasts
// scan events to them. Broadcasting is best-effort: a slow client
// misses events rather than blocking the scan path.
type Hub struct {
	// Registered clients map: ClientID -> Client
	clients map[string]*Client

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Outbound scan events
	broadcast chan []byte

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		clients:    make(map[string]*Client),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.ClientID]; ok {
				close(old.send)
			}
			h.clients[client.ClientID] = client
			h.mu.Unlock()
			log.Printf("📺 Scan feed: client connected (%s)", client.ClientID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ClientID]; ok {
				delete(h.clients, client.ClientID)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("📴 Scan feed: client disconnected (%s)", client.ClientID)

		case message := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Buffer full or client dead; drop the event.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastScan pushes one scan event to every connected client.
func (h *Hub) BroadcastScan(event interface{}) {
	jsonMsg, err := json.Marshal(event)
	if err != nil {
		log.Printf("⚠️ Scan feed: failed to marshal event: %v", err)
		return
	}

	select {
	case h.broadcast <- jsonMsg:
	default:
		// Feed congested; a dropped dashboard update is harmless.
	}
}
