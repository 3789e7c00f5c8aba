package websocket

import (
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeTimeout   = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4 * 1024
	sendBufferSize = 64
)

type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	username      string
	send          chan interface{}
	subscriptions map[string]bool // room -> subscribed
	mu            sync.RWMutex
}

func NewClient(hub *Hub, conn *websocket.Conn, username string) *Client {
	return &Client{
		hub:           hub,
		conn:          conn,
		username:      username,
		send:          make(chan interface{}, sendBufferSize),
		subscriptions: make(map[string]bool),
	}
}

func (c *Client) Subscribe(room string) {
	c.mu.Lock()
	c.subscriptions[room] = true
	c.mu.Unlock()

	c.hub.Subscribe(c, room)

	log.Debug().Str("username", c.username).Str("room", room).Msg("[WS] Client joined room")
}

func (c *Client) Unsubscribe(room string) {
	c.mu.Lock()
	delete(c.subscriptions, room)
	c.mu.Unlock()

	c.hub.Unsubscribe(c, room)

	log.Debug().Str("username", c.username).Str("room", room).Msg("[WS] Client left room")
}

func (c *Client) rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rooms := make([]string, 0, len(c.subscriptions))
	for room := range c.subscriptions {
		rooms = append(rooms, room)
	}
	return rooms
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg IncomingMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Debug().Str("username", c.username).Err(err).Msg("[WS] Read error")
			} else {
				log.Debug().Str("username", c.username).Msg("[WS] Client disconnected")
			}
			return
		}

		c.handleMessage(&msg)
	}
}

func (c *Client) handleMessage(msg *IncomingMessage) {
	switch msg.Type {
	case MessageTypeSubscribe:
		if msg.Room != "" {
			c.Subscribe(msg.Room)
		}
	case MessageTypeUnsubscribe:
		if msg.Room != "" {
			c.Unsubscribe(msg.Room)
		}
	case MessageTypePing:
		c.enqueue(&OutgoingMessage{Type: MessageTypePong})
	default:
		c.enqueue(&OutgoingMessage{Type: MessageTypeError, Error: "unknown message type"})
	}
}

// enqueue never blocks; a slow client loses messages rather than stalling the hub.
func (c *Client) enqueue(msg interface{}) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				log.Debug().Str("username", c.username).Err(err).Msg("[WS] Write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Str("username", c.username).Err(err).Msg("[WS] Ping error")
				return
			}
		}
	}
}
