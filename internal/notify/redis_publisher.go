package notify

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/vitechat/vitechat_server/internal/recording"
)

type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher publishes recording events on a pub/sub channel so other
// chat services can react to them.
type RedisPublisher struct {
	client  redisClient
	channel string
}

func NewRedisPublisher(ctx context.Context, addr, password string, db int, channel string) (*RedisPublisher, *redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info().Str("addr", addr).Str("channel", channel).Msg("[NOTIFY] Redis publisher connected")
	return &RedisPublisher{client: rdb, channel: channel}, rdb, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, event recording.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}
