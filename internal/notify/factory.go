package notify

import (
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
)

const redisQueueMaxLen = 10000

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New selects the notifier configured by NOTIFY_BACKEND. The returned closer
// releases broker connections on shutdown.
func New(cfg config.Config, rdb *redis.Client, logger zerolog.Logger) (appointment.Notifier, io.Closer, error) {
	switch cfg.NotifyBackend {
	case config.NotifyRedis:
		if rdb == nil {
			return nil, nil, fmt.Errorf("notify: redis backend selected without a redis client")
		}
		return NewRedisNotifier(rdb, cfg.NotifyQueue, redisQueueMaxLen), nopCloser{}, nil
	case config.NotifyAMQP:
		n, err := NewAMQPNotifier(cfg.AMQPURL, cfg.NotifyQueue)
		if err != nil {
			return nil, nil, err
		}
		return n, n, nil
	case config.NotifyLog, "":
		return NewLogNotifier(logger), nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("notify: unknown backend %q", cfg.NotifyBackend)
}
