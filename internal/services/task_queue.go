package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/freelancehub/backend/internal/config"
	"github.com/freelancehub/backend/pkg/logger"
	"github.com/hibiken/asynq"
)

const (
	TaskTypeEffect = "effect:run"
)

// TaskQueue defines the interface for post-commit effect processing
type TaskQueue interface {
	// Enqueue hands an effect to the queue. Synchronous queues run it
	// immediately and report its error.
	Enqueue(ctx context.Context, effect *Effect) error
	// IsAsync returns true if queue processes tasks asynchronously
	IsAsync() bool
	// Close gracefully shuts down the queue
	Close() error
}

var (
	globalTaskQueue TaskQueue
	taskQueueOnce   sync.Once
)

// InitTaskQueue initializes the global task queue based on config
func InitTaskQueue(cfg *config.Config) TaskQueue {
	taskQueueOnce.Do(func() {
		if cfg.Redis.Enabled {
			queue, err := NewAsyncQueue(&cfg.Redis)
			if err != nil {
				logger.Warnf("[TaskQueue] Redis unavailable, falling back to sync mode: %v", err)
				globalTaskQueue = NewSyncQueue()
			} else {
				logger.Infof("[TaskQueue] Async queue initialized with Redis at %s", cfg.Redis.Addr)
				globalTaskQueue = queue
			}
		} else {
			logger.Infof("[TaskQueue] Sync queue initialized (Redis disabled)")
			globalTaskQueue = NewSyncQueue()
		}
	})
	return globalTaskQueue
}

// GetTaskQueue returns the global task queue instance
func GetTaskQueue() TaskQueue {
	return globalTaskQueue
}

// AsyncQueue implements TaskQueue using asynq (Redis-based)
type AsyncQueue struct {
	client *asynq.Client
}

func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	client := asynq.NewClient(redisOpt)

	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

func (q *AsyncQueue) Enqueue(ctx context.Context, effect *Effect) error {
	payload, err := json.Marshal(effect)
	if err != nil {
		return err
	}

	t := asynq.NewTask(TaskTypeEffect, payload)
	info, err := q.client.EnqueueContext(ctx, t,
		asynq.Queue("effects"),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return err
	}

	logger.Debug().Str("task_id", info.ID).Str("effect", effect.String()).Msg("effect enqueued")
	return nil
}

func (q *AsyncQueue) IsAsync() bool {
	return true
}

func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// SyncQueue runs effects in the caller's goroutine (no Redis)
type SyncQueue struct {
	processor func(context.Context, *Effect) error
}

func NewSyncQueue() *SyncQueue {
	return &SyncQueue{}
}

// SetProcessor sets the function that executes effects
func (q *SyncQueue) SetProcessor(processor func(context.Context, *Effect) error) {
	q.processor = processor
}

func (q *SyncQueue) Enqueue(ctx context.Context, effect *Effect) error {
	if q.processor == nil {
		logger.Warnf("[SyncQueue] no processor set, dropping %s", effect.String())
		return nil
	}
	return q.processor(ctx, effect)
}

func (q *SyncQueue) IsAsync() bool {
	return false
}

func (q *SyncQueue) Close() error {
	return nil
}
