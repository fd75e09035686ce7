package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"engagement-service/internal/models"

	"github.com/google/uuid"
)

var ErrHubBusy = errors.New("websocket hub busy")

type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type Message struct {
	UserID  uuid.UUID
	Payload []byte
}

// Hub pushes events to every open connection of a user.
type Hub struct {
	clients    map[uuid.UUID]map[*Client]bool
	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx ends. Afterwards registering or unregistering
// a client no longer blocks.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, clients := range h.clients {
				for client := range clients {
					close(client.send)
				}
			}
			h.clients = make(map[uuid.UUID]map[*Client]bool)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.clients[client.UserID]; !ok {
				h.clients[client.UserID] = make(map[*Client]bool)
			}
			h.clients[client.UserID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[message.UserID] {
				select {
				case client.send <- message.Payload:
				default:
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove must be called with mu held.
func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.UserID)
	}
}

// RegisterClient adds client to the hub. Once the hub has stopped the
// client's send channel is closed so its WritePump ends the connection.
func (h *Hub) RegisterClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Connected reports how many connections userID has open.
func (h *Hub) Connected(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// SendToUser queues event for userID without blocking.
func (h *Hub) SendToUser(userID uuid.UUID, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- &Message{UserID: userID, Payload: payload}:
		return nil
	default:
		return ErrHubBusy
	}
}

// Enqueue delivers a stored notification to the recipient's live connections.
func (h *Hub) Enqueue(_ context.Context, n models.Notification) error {
	return h.SendToUser(n.RecipientID, Event{Type: "notification", Payload: n})
}
