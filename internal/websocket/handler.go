package websocket

import (
	"regexp"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

type Handler struct {
	hub      *Hub
	upgrader websocket.FastHTTPUpgrader
}

// NewHandler accepts upgrades from originAllowed origins. A nil check allows all.
func NewHandler(hub *Hub, originAllowed func(origin string) bool) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.FastHTTPUpgrader{
			CheckOrigin: func(ctx *fasthttp.RequestCtx) bool {
				origin := string(ctx.Request.Header.Peek("Origin"))
				return origin == "" || originAllowed == nil || originAllowed(origin)
			},
		},
	}
}

// HandleFastHTTP upgrades the connection. Clients identify themselves with
// the username query parameter and may pass room to join one immediately.
func (h *Handler) HandleFastHTTP(ctx *fasthttp.RequestCtx) {
	username := string(ctx.QueryArgs().Peek("username"))
	if !usernamePattern.MatchString(username) {
		log.Debug().Msg("[WS] Connection rejected: invalid username")
		ctx.Error("Bad Request: invalid username", fasthttp.StatusBadRequest)
		return
	}
	room := string(ctx.QueryArgs().Peek("room"))

	err := h.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		client := NewClient(h.hub, conn, username)
		h.hub.Register(client)
		if room != "" {
			client.Subscribe(room)
		}

		client.enqueue(&OutgoingMessage{Type: MessageTypeConnected, Username: username, Room: room})
		log.Info().Str("username", username).Str("room", room).Msg("[WS] Client connected")

		go client.WritePump()
		client.ReadPump()
	})
	if err != nil {
		log.Error().Err(err).Msg("[WS] Failed to upgrade connection")
	}
}
