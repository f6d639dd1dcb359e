package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

// RedisNotifier pushes JSON messages onto a Redis list consumed by the
// notification worker.
type RedisNotifier struct {
	client *redis.Client
	queue  string
	maxLen int64
}

// NewRedisNotifier builds a notifier. maxLen bounds the list; 0 means unbounded.
func NewRedisNotifier(client *redis.Client, queue string, maxLen int64) *RedisNotifier {
	return &RedisNotifier{client: client, queue: queue, maxLen: maxLen}
}

func (n *RedisNotifier) Notify(ctx context.Context, a appointment.Appointment) error {
	body, err := encode(a)
	if err != nil {
		return err
	}

	pipe := n.client.TxPipeline()
	pipe.LPush(ctx, n.queue, body)
	if n.maxLen > 0 {
		pipe.LTrim(ctx, n.queue, 0, n.maxLen-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("notify: push to %s: %w", n.queue, err)
	}
	return nil
}
