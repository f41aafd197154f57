// Package statushub broadcasts Node Monitor tick summaries to
// connected WebSocket observers, for operators watching cluster state
// live instead of tailing logs.
package statushub

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"cmapid/internal/monitor"
)

// Hub manages WebSocket connections and fans out TickSummary events to
// all of them. Publish drops a summary when the 256-entry broadcast
// buffer is full rather than blocking the Node Monitor loop that
// publishes it; a client whose write fails is disconnected.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan monitor.TickSummary
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mutex      sync.RWMutex
}

// NewHub creates a status hub. Call Run in its own goroutine before
// registering any clients.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan monitor.TickSummary, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run drives the hub's event loop until stopped by closing done.
func (h *Hub) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			log.Printf("statushub: client connected, total: %d", len(h.clients))

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.mutex.Unlock()
			log.Printf("statushub: client disconnected, total: %d", len(h.clients))

		case summary := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				if err := client.WriteJSON(summary); err != nil {
					log.Printf("statushub: write error: %v", err)
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Register adds a new client connection.
func (h *Hub) Register(conn *websocket.Conn) {
	h.register <- conn
}

// Unregister removes a client connection.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.unregister <- conn
}

// Publish implements monitor.TickObserver.
func (h *Hub) Publish(summary monitor.TickSummary) {
	select {
	case h.broadcast <- summary:
	default:
		log.Printf("statushub: broadcast channel full, tick summary dropped")
	}
}

var _ monitor.TickObserver = (*Hub)(nil)
