package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const resubscribeDelay = time.Second

// Subscribe feeds every message on channel to the monitor until ctx is done.
func Subscribe(ctx context.Context, client *redis.Client, channel string, monitor *Monitor) error {
	if client == nil {
		return errors.New("eventlog: redis client is nil")
	}

	pubsub := client.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Info("Event log source subscribed", "channel", channel)

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			log.Error("Event log subscription error", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(resubscribeDelay):
			}
			continue
		}

		if _, err := monitor.HandlePayload(ctx, []byte(msg.Payload)); err != nil {
			log.Error("Invalid event payload", "channel", msg.Channel, "error", err)
		}
	}
}

// Publish sends event on channel. Forwarders and tests use it to inject events.
func Publish(ctx context.Context, client *redis.Client, channel string, event RawEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("eventlog: encode event: %w", err)
	}
	if err := client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("eventlog: publish: %w", err)
	}
	return nil
}
