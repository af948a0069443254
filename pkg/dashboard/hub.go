package dashboard

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/mayhemchaos/mayhem-go/pkg/log"
)

// Message is the envelope of every frame sent to dashboard clients
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub fans messages out to the connected websocket clients. A failed
// delivery removes only the failing client, the producer loop is never
// stopped by a subscriber.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func NewHub() *Hub {
	return &Hub{clients: map[*websocket.Conn]bool{}}
}

// Register adds a client connection
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mu.Unlock()

	log.Infof("[Dashboard]: Client connected, total clients: %v", total)
}

// Unregister removes a client connection
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	total := len(h.clients)
	h.mu.Unlock()

	log.Infof("[Dashboard]: Client disconnected, total clients: %v", total)
}

// Send delivers a message to a single client, unregistering it on failure
func (h *Hub) Send(conn *websocket.Conn, message Message) {
	if err := conn.WriteJSON(message); err != nil {
		h.Unregister(conn)
		conn.Close()
	}
}

// Broadcast delivers a message to every client, dropping the ones whose
// send fails
func (h *Hub) Broadcast(message Message) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		h.Send(conn, message)
	}
}

// Clients returns the current subscriber count
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
