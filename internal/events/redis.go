package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisChannel is the pub/sub channel shared by all instances.
const RedisChannel = "pointer_events"

// RedisBridge relays events through Redis pub/sub.
type RedisBridge struct {
	rdb    *redis.Client
	logger *slog.Logger
}

var _ Bridge = (*RedisBridge)(nil)

// NewRedisBridge creates a bridge on an existing client.
func NewRedisBridge(rdb *redis.Client, logger *slog.Logger) *RedisBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBridge{rdb: rdb, logger: logger}
}

// Publish sends ev to the shared channel.
func (b *RedisBridge) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.rdb.Publish(ctx, RedisChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Run subscribes to the shared channel and delivers decoded events.
func (b *RedisBridge) Run(ctx context.Context, deliver func(Event)) error {
	pubsub := b.rdb.Subscribe(ctx, RedisChannel)
	defer func() {
		if err := pubsub.Close(); err != nil {
			b.logger.Warn("failed to close redis subscription", "error", err)
		}
	}()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", RedisChannel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("dropping malformed pointer event", "error", err)
				continue
			}
			deliver(ev)
		}
	}
}
