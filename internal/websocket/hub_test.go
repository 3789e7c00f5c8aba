package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitechat/vitechat_server/internal/recording"
)

func newTestClient(hub *Hub, username string) *Client {
	return NewClient(hub, nil, username)
}

func receive(t *testing.T, c *Client) interface{} {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return nil
	}
}

func TestHub_Publish_ShouldDeliverOnlyToRoomSubscribers(t *testing.T) {
	// given
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	alice := newTestClient(hub, "alice")
	bob := newTestClient(hub, "bob")
	hub.Register(alice)
	hub.Register(bob)
	alice.Subscribe("general")
	bob.Subscribe("random")

	// when
	err := hub.Publish(context.Background(), recording.Event{
		Type:      recording.EventRecordingCompleted,
		Room:      "general",
		SessionID: "0123456789",
	})

	// then
	require.NoError(t, err)
	msg, ok := receive(t, alice).(*RecordingMessage)
	require.True(t, ok)
	assert.Equal(t, MessageTypeRecording, msg.Type)
	assert.Equal(t, "0123456789", msg.Event.SessionID)
	assert.Empty(t, bob.send)
}

func TestHub_Unsubscribe_ShouldStopDelivery(t *testing.T) {
	// given
	hub := NewHub()
	alice := newTestClient(hub, "alice")
	hub.registerClient(alice)
	alice.Subscribe("general")

	// when
	alice.Unsubscribe("general")
	hub.broadcastToRoom(&BroadcastMessage{Room: "general", Event: &recording.Event{Type: recording.EventRecordingExpired}})

	// then
	assert.Empty(t, alice.send)
	_, subscriptions := hub.stats()
	assert.Equal(t, 0, subscriptions)
}

func TestHub_UnregisterClient_ShouldDropRoomsAndCloseSend(t *testing.T) {
	// given
	hub := NewHub()
	alice := newTestClient(hub, "alice")
	hub.registerClient(alice)
	alice.Subscribe("general")
	alice.Subscribe("random")

	// when
	hub.unregisterClient(alice)

	// then
	clients, subscriptions := hub.stats()
	assert.Equal(t, 0, clients)
	assert.Equal(t, 0, subscriptions)
	_, open := <-alice.send
	assert.False(t, open)
}

func TestHub_BroadcastToRoom_ShouldSkipFullClients(t *testing.T) {
	// given
	hub := NewHub()
	alice := newTestClient(hub, "alice")
	hub.registerClient(alice)
	alice.Subscribe("general")
	for i := 0; i < sendBufferSize; i++ {
		alice.send <- &OutgoingMessage{Type: MessageTypePong}
	}

	// when
	hub.broadcastToRoom(&BroadcastMessage{Room: "general", Event: &recording.Event{Type: recording.EventRecordingCompleted}})

	// then
	assert.Len(t, alice.send, sendBufferSize)
}

func TestHub_Publish_AfterStopShouldNotBlock(t *testing.T) {
	// given
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	// when
	for i := 0; i < 300; i++ {
		require.NoError(t, hub.Publish(context.Background(), recording.Event{Room: "general"}))
	}

	// then
	hub.Unregister(newTestClient(hub, "late"))
}

func TestClient_HandleMessage_ShouldAnswerPing(t *testing.T) {
	// given
	hub := NewHub()
	alice := newTestClient(hub, "alice")

	// when
	alice.handleMessage(&IncomingMessage{Type: MessageTypePing})

	// then
	msg, ok := receive(t, alice).(*OutgoingMessage)
	require.True(t, ok)
	assert.Equal(t, MessageTypePong, msg.Type)
}
