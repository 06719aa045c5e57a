package notifications

import (
	"context"
	"runtime/debug"

	"github.com/redis/go-redis/v9"

	"github.com/morroware/FEC-STL-sub000/internal/observability"
)

// ActivityChannel is the Redis pub/sub channel carrying catalog events.
const ActivityChannel = "catalog:events"

// Notifier publishes activity into Redis so every instance's hub sees it.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Enabled reports whether a Redis client is attached.
func (n *Notifier) Enabled() bool {
	return n != nil && n.rdb != nil
}

// PublishActivity sends a serialized event to the activity channel.
func (n *Notifier) PublishActivity(ctx context.Context, payload string) error {
	if !n.Enabled() {
		return nil
	}
	return n.rdb.Publish(ctx, ActivityChannel, payload).Err()
}

// StartActivitySubscriber subscribes to the activity channel and calls
// onMessage for each payload until ctx is cancelled.
func (n *Notifier) StartActivitySubscriber(ctx context.Context, onMessage func(payload string)) error {
	if !n.Enabled() {
		return nil
	}
	sub := n.rdb.Subscribe(ctx, ActivityChannel)
	// Wait for the subscription confirmation so publishes right after return are not lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							observability.GlobalLogger.Error("panic in activity subscriber",
								"panic", r, "stack", string(debug.Stack()))
						}
					}()
					onMessage(msg.Payload)
				}()
			}
		}
	}()

	return nil
}
