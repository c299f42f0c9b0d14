package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/halfnote/halfnote/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrDispatch marks transport failures while handing tasks to the queue.
// Success means accepted for delivery, never that the task has executed.
var ErrDispatch = errors.New("dispatch_failed")

// Dispatcher enqueues planned enrichment tasks, fire and forget.
type Dispatcher interface {
	// EnqueueMany pushes the whole batch in a single transport call so a
	// partial failure can be retried as a unit.
	EnqueueMany(ctx context.Context, tasks []Task) error
}

// Consumer is the worker-side view of the queue.
type Consumer interface {
	// Pop blocks up to timeout for the next task. A nil task with a nil
	// error means the timeout elapsed with nothing queued.
	Pop(ctx context.Context, timeout time.Duration) (*Task, error)
}

// RedisQueue pushes JSON task envelopes onto a single redis list.
type RedisQueue struct {
	client *redis.Client
	key    string
	log    *zap.Logger
}

func NewRedisClient(cfg config.Config) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		opt = &redis.Options{Addr: cfg.RedisURL}
	}
	return redis.NewClient(opt), nil
}

func NewRedisQueue(cfg config.Config, client *redis.Client, log *zap.Logger) *RedisQueue {
	return &RedisQueue{
		client: client,
		key:    cfg.EnrichmentQueueKey,
		log:    log.Named("queue.redis"),
	}
}

func (q *RedisQueue) EnqueueMany(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}
	values := make([]any, 0, len(tasks))
	for _, task := range tasks {
		raw, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("%w: encode task: %v", ErrDispatch, err)
		}
		values = append(values, raw)
	}
	if err := q.client.LPush(ctx, q.key, values...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDispatch, err)
	}
	q.log.Debug("tasks enqueued", zap.Int("count", len(tasks)))
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*Task, error) {
	result, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var task Task
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		q.log.Warn("dropping malformed task envelope", zap.Error(err))
		return nil, nil
	}
	return &task, nil
}

var Module = fx.Module("queue",
	fx.Provide(NewRedisClient),
	fx.Provide(NewRedisQueue),
	fx.Provide(func(q *RedisQueue) Dispatcher { return q }),
	fx.Provide(func(q *RedisQueue) Consumer { return q }),
)
