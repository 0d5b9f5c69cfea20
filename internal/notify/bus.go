package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"gigflow/internal/common/logger"
	"gigflow/internal/models"
)

// RedisBus feeds events published by any instance into the local registry.
type RedisBus struct {
	client   *redis.Client
	channel  string
	registry *Registry
	logger   logger.Logger
}

func NewRedisBus(client *redis.Client, channel string, registry *Registry, log logger.Logger) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{client: client, channel: channel, registry: registry, logger: log}
}

// Run blocks until ctx ends. It returns an error only when the subscription
// cannot be established.
func (b *RedisBus) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	b.logger.Info("Notification bus subscribed", map[string]interface{}{
		"channel": b.channel,
	})

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			b.handle(msg)
		}
	}
}

func (b *RedisBus) handle(msg *redis.Message) {
	var event models.HireEvent
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		b.logger.Warn("Discarding malformed bus message", map[string]interface{}{
			"channel": msg.Channel,
			"error":   err,
		})
		return
	}
	if event.RecipientID == "" {
		return
	}
	b.registry.Deliver(&event)
}
