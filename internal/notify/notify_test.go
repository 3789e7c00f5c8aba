package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitechat/vitechat_server/internal/recording"
)

type stubNotifier struct {
	events []recording.Event
	err    error
}

func (s *stubNotifier) Publish(_ context.Context, event recording.Event) error {
	s.events = append(s.events, event)
	return s.err
}

func completedEvent() recording.Event {
	return recording.Event{
		Type:      recording.EventRecordingCompleted,
		Room:      "general",
		SessionID: "0123456789",
		Owner:     "alice",
		Recording: &recording.FinalizedRecording{Filename: "screen-alice-1-01234567.webm", SizeBytes: 9},
	}
}

func TestMulti_Publish_ShouldDeliverToAllPublishersDespiteFailure(t *testing.T) {
	// given
	failing := &stubNotifier{err: errors.New("down")}
	healthy := &stubNotifier{}
	multi := NewMulti(failing, nil, healthy)

	// when
	err := multi.Publish(context.Background(), completedEvent())

	// then
	assert.Error(t, err)
	assert.Len(t, multi.publishers, 2)
	assert.Len(t, failing.events, 1)
	assert.Len(t, healthy.events, 1)
}

func TestMulti_Publish_WithoutPublishersShouldSucceed(t *testing.T) {
	assert.NoError(t, NewMulti().Publish(context.Background(), completedEvent()))
}

type fakeRedis struct {
	channel string
	message []byte
	err     error
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.message = message.([]byte)
	return redis.NewIntResult(1, f.err)
}

func TestRedisPublisher_Publish_ShouldSendJSONToChannel(t *testing.T) {
	// given
	client := &fakeRedis{}
	publisher := &RedisPublisher{client: client, channel: "recordings"}

	// when
	err := publisher.Publish(context.Background(), completedEvent())

	// then
	require.NoError(t, err)
	assert.Equal(t, "recordings", client.channel)
	var decoded recording.Event
	require.NoError(t, json.Unmarshal(client.message, &decoded))
	assert.Equal(t, recording.EventRecordingCompleted, decoded.Type)
	assert.Equal(t, "screen-alice-1-01234567.webm", decoded.Recording.Filename)
}

func TestRedisPublisher_Publish_ShouldWrapClientError(t *testing.T) {
	publisher := &RedisPublisher{client: &fakeRedis{err: errors.New("connection refused")}, channel: "recordings"}

	err := publisher.Publish(context.Background(), completedEvent())

	assert.ErrorContains(t, err, "redis publish")
}

type fakeWriter struct {
	messages []kafka.Message
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisher_Publish_ShouldKeyMessagesByRoom(t *testing.T) {
	// given
	writer := &fakeWriter{}
	publisher := &KafkaPublisher{writer: writer}

	// when
	err := publisher.Publish(context.Background(), completedEvent())
	require.NoError(t, publisher.Close())

	// then
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "general", string(msg.Key))
	assert.Equal(t, "type", msg.Headers[0].Key)
	assert.Equal(t, "recording.completed", string(msg.Headers[0].Value))
	assert.True(t, writer.closed)
}
