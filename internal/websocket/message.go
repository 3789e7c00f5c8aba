package websocket

import "github.com/vitechat/vitechat_server/internal/recording"

type MessageType string

const (
	MessageTypeRecording   MessageType = "recording"
	MessageTypeConnected   MessageType = "connected"
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypePing        MessageType = "ping"
	MessageTypePong        MessageType = "pong"
	MessageTypeError       MessageType = "error"
)

type IncomingMessage struct {
	Type MessageType `json:"type"`
	Room string      `json:"room,omitempty"`
}

type OutgoingMessage struct {
	Type     MessageType `json:"type"`
	Username string      `json:"username,omitempty"`
	Room     string      `json:"room,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// RecordingMessage carries a lifecycle event to the members of a room.
type RecordingMessage struct {
	Type  MessageType      `json:"type"`
	Event *recording.Event `json:"event"`
}

type BroadcastMessage struct {
	Room  string
	Event *recording.Event
}
