// Package ws pushes client-state changes to connected browser UIs.
package ws

import (
	"context"
	"encoding/json"
	"sync"

	"chatmallu/client/pkg/logger"
)

// Event types pushed to clients.
const (
	EventMessage      = "message"
	EventGroupMessage = "group_message"
	EventTyping       = "typing"
	EventUnread       = "unread"
	EventSuggestions  = "suggestions"
	EventConnection   = "connection"
	EventDeleted      = "deleted"
	EventError        = "error"
	EventPong         = "pong"
)

// Message is the envelope of every frame, in both directions.
type Message struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

type outbound struct {
	Type    string `json:"type"`
	Content any    `json:"content,omitempty"`
}

// ActiveChatFunc is told which chat a client has opened.
type ActiveChatFunc func(chatID string)

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	log        *logger.Logger
	onActive   ActiveChatFunc
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log.WithComponent("ws"),
	}
}

// OnActiveChat installs the handler for "active" frames from clients.
func (h *Hub) OnActiveChat(fn ActiveChatFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onActive = fn
}

func (h *Hub) activeHandler() ActiveChatFunc {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.onActive
}

// Run dispatches registrations and broadcasts until ctx is done. It must
// be called at most once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.close()
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Debug("client registered", "client", client.ID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.log.Debug("client unregistered", "client", client.ID)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// Closing the connection ends ReadPump, which then
					// unregisters a client we no longer track.
					delete(h.clients, client)
					client.close()
					h.log.Warn("client removed due to blocked channel", "client", client.ID)
				}
			}
			h.mu.Unlock()
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

// detach is a no-op once Run has returned.
func (h *Hub) detach(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish queues an event for every connected client. It never blocks: if
// the broadcast queue is full the event is dropped.
func (h *Hub) Publish(eventType string, content any) {
	data, err := json.Marshal(outbound{Type: eventType, Content: content})
	if err != nil {
		h.log.LogError(err, "marshal event", "type", eventType)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn("event dropped, broadcast queue full", "type", eventType)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
