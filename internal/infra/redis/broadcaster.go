package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// EventsChannel carries every lifecycle notification between processes.
const EventsChannel = "quiz:events"

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Broadcaster fans lifecycle events out over Redis pub/sub so every API
// replica sees every transition regardless of which process produced it.
type Broadcaster struct {
	client *redis.Client
}

func NewBroadcaster(client *redis.Client) *Broadcaster {
	return &Broadcaster{client: client}
}

// Publish sends an event to all subscribed processes.
func (b *Broadcaster) Publish(ctx context.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	message, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}
	if err := b.client.Publish(ctx, EventsChannel, message).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe delivers every event published on the channel to handle, in
// publish order, until the context is cancelled. Malformed messages are
// dropped.
func (b *Broadcaster) Subscribe(ctx context.Context, handle func(event string, data json.RawMessage)) error {
	sub := b.client.Subscribe(ctx, EventsChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Warn().Err(err).Msg("dropping malformed broadcast")
				continue
			}
			handle(env.Event, env.Data)
		}
	}
}
