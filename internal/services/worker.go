package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/freelancehub/backend/internal/config"
	"github.com/freelancehub/backend/pkg/logger"
	"github.com/hibiken/asynq"
)

// Worker consumes effect tasks from Redis
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor func(context.Context, *Effect) error
	wg        sync.WaitGroup
	running   bool
	mu        sync.Mutex
}

func NewWorker(cfg *config.RedisConfig) *Worker {
	if !cfg.Enabled {
		return nil
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"effects": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Warn().Err(err).Str("task", task.Type()).Msg("effect task failed")
			}),
		},
	)

	return &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
	}
}

// SetProcessor sets the function that executes effects
func (w *Worker) SetProcessor(processor func(context.Context, *Effect) error) {
	w.processor = processor
}

func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.mux.HandleFunc(TaskTypeEffect, w.handleEffectTask)

	w.running = true
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		logger.Infof("[Worker] Starting effect worker...")
		if err := w.server.Run(w.mux); err != nil {
			logger.Errorf("[Worker] Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	logger.Infof("[Worker] Shutting down...")
	w.server.Shutdown()
	w.running = false
	w.wg.Wait()
	logger.Infof("[Worker] Shutdown complete")
}

func (w *Worker) handleEffectTask(ctx context.Context, t *asynq.Task) error {
	var effect Effect
	if err := json.Unmarshal(t.Payload(), &effect); err != nil {
		logger.Errorf("[Worker] Failed to unmarshal effect: %v", err)
		return err
	}

	if w.processor == nil {
		logger.Warnf("[Worker] no processor set, dropping %s", effect.String())
		return nil
	}

	return w.processor(ctx, &effect)
}
