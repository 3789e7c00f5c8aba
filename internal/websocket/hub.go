package websocket

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/vitechat/vitechat_server/internal/recording"
)

// Hub fans recording events out to the websocket clients that joined the
// event's room. It satisfies recording.Notifier.
type Hub struct {
	clients    map[*Client]bool
	byUser     map[string][]*Client // username -> clients
	byRoom     map[string][]*Client // room -> subscribers
	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		byUser:     make(map[string][]*Client),
		byRoom:     make(map[string][]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case message := <-h.broadcast:
			h.broadcastToRoom(message)
		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	h.byUser[client.username] = append(h.byUser[client.username], client)

	log.Info().Str("username", client.username).Int("totalClients", len(h.clients)).Msg("[WS] Client registered")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	close(client.send)

	h.byUser[client.username] = removeClient(h.byUser[client.username], client)
	if len(h.byUser[client.username]) == 0 {
		delete(h.byUser, client.username)
	}
	for _, room := range client.rooms() {
		h.removeFromRoom(client, room)
	}

	log.Info().Str("username", client.username).Int("totalClients", len(h.clients)).Msg("[WS] Client unregistered")
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// send channels stay open; the pumps exit once the connection errors
	for client := range h.clients {
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

func (h *Hub) removeFromRoom(client *Client, room string) {
	h.byRoom[room] = removeClient(h.byRoom[room], client)
	if len(h.byRoom[room]) == 0 {
		delete(h.byRoom, room)
	}
}

func removeClient(clients []*Client, client *Client) []*Client {
	for i, c := range clients {
		if c == client {
			return append(clients[:i], clients[i+1:]...)
		}
	}
	return clients
}

func (h *Hub) Subscribe(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.byRoom[room] {
		if c == client {
			return
		}
	}
	h.byRoom[room] = append(h.byRoom[room], client)

	log.Debug().Str("room", room).Int("subscribers", len(h.byRoom[room])).Msg("[WS] Room subscription added")
}

func (h *Hub) Unsubscribe(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeFromRoom(client, room)

	log.Debug().Str("room", room).Int("subscribers", len(h.byRoom[room])).Msg("[WS] Room subscription removed")
}

func (h *Hub) broadcastToRoom(msg *BroadcastMessage) {
	h.mu.RLock()
	clients := make([]*Client, len(h.byRoom[msg.Room]))
	copy(clients, h.byRoom[msg.Room])
	h.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	out := &RecordingMessage{Type: MessageTypeRecording, Event: msg.Event}
	delivered := 0
	for _, client := range clients {
		if client.enqueue(out) {
			delivered++
			continue
		}
		log.Warn().Str("username", client.username).Str("room", msg.Room).Msg("[WS] Client send buffer full, dropping message")
	}

	log.Debug().
		Str("room", msg.Room).
		Str("event", string(msg.Event.Type)).
		Int("recipients", delivered).
		Msg("[WS] Recording event broadcast complete")
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) Publish(ctx context.Context, event recording.Event) error {
	select {
	case h.broadcast <- &BroadcastMessage{Room: event.Room, Event: &event}:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) stats() (totalClients, totalSubscriptions int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	totalClients = len(h.clients)
	for _, clients := range h.byRoom {
		totalSubscriptions += len(clients)
	}
	return
}
