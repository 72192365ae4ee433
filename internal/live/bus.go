// Package live implements the push-based live-query contract: writers
// publish a topic after every committed mutation, and watchers re-run their
// query to emit a fresh consistent snapshot per notification.
package live

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Topics published by the feature services.
const (
	// TopicCatalog fires when a product row changes, including indirect
	// stock changes driven by sale writes.
	TopicCatalog = "catalog.changed"
	// TopicSales fires when a sale row is inserted, updated or deleted.
	TopicSales = "sales.changed"
)

// Bus fans mutation notifications out to watchers over Redis pub/sub.
type Bus struct {
	client *redis.Client
}

// NewBus instantiates the bus helper.
func NewBus(client *redis.Client) *Bus {
	return &Bus{client: client}
}

// Publish announces that the rows behind the given topics changed. A nil bus
// is a no-op so services stay usable in tests without Redis.
func (b *Bus) Publish(ctx context.Context, topics ...string) error {
	if b == nil || b.client == nil {
		return nil
	}
	for _, topic := range topics {
		if err := b.client.Publish(ctx, topic, "1").Err(); err != nil {
			return err
		}
	}
	return nil
}

// Watch subscribes to the given topics and returns a channel that ticks once
// immediately (for the initial snapshot) and then once per notification.
// The channel closes when ctx ends or the subscription drops.
func (b *Bus) Watch(ctx context.Context, topics ...string) (<-chan struct{}, error) {
	if b == nil || b.client == nil {
		return nil, errors.New("live: bus not configured")
	}
	if len(topics) == 0 {
		return nil, errors.New("live: at least one topic required")
	}

	pubsub := b.client.Subscribe(ctx, topics...)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	ticks := make(chan struct{}, 1)
	ticks <- struct{}{}

	go func() {
		defer close(ticks)
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				select {
				case ticks <- struct{}{}:
				default:
					// A tick is already pending; the watcher will re-query
					// anyway and observe the newer state.
				}
			}
		}
	}()

	return ticks, nil
}
