// README: Outbox worker; drains tasks with at-least-once delivery through
// per-topic handlers.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"swoop/internal/observability"
)

// Handler delivers one task payload to its collaborator. Handlers must be
// idempotent: a task may be delivered more than once.
type Handler func(ctx context.Context, key string, payload json.RawMessage) error

// taskSource is the subset of Repo the worker needs.
type taskSource interface {
	ClaimBatch(ctx context.Context, limit, maxAttempts int) ([]*Task, error)
	MarkDone(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string) error
}

type WorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

type Worker struct {
	repo     taskSource
	handlers map[string]Handler
	cfg      WorkerConfig
	log      *zap.Logger
}

func NewWorker(repo *Repo, handlers map[string]Handler, cfg WorkerConfig, log *zap.Logger) *Worker {
	return &Worker{repo: repo, handlers: handlers, cfg: cfg, log: log}
}

const minPollInterval = 10 * time.Millisecond

// Run polls for processable tasks until the context is cancelled. A
// misconfigured poll interval is floored rather than handed to the ticker,
// which panics on non-positive durations.
func (w *Worker) Run(ctx context.Context) error {
	interval := w.cfg.PollInterval
	if interval < minPollInterval {
		interval = minPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.log.Error("outbox batch failed", zap.Error(err))
			}
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) error {
	tasks, err := w.repo.ClaimBatch(ctx, w.cfg.BatchSize, w.cfg.MaxAttempts)
	if err != nil {
		return fmt.Errorf("claim batch: %w", err)
	}

	for _, task := range tasks {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.processTask(ctx, task)
	}
	return nil
}

func (w *Worker) processTask(ctx context.Context, task *Task) {
	handler, ok := w.handlers[task.Topic]
	if !ok {
		// No handler registered; park the task as permanently failed so it
		// stops being claimed.
		w.log.Error("no handler for outbox topic", zap.String("topic", task.Topic))
		_ = w.repo.MarkFailed(ctx, task.ID, w.cfg.MaxAttempts, "no handler for topic "+task.Topic)
		return
	}

	if err := handler(ctx, task.ID.String(), task.Payload); err != nil {
		attempts := task.Attempts + 1
		w.log.Warn("outbox delivery failed",
			zap.String("task_id", task.ID.String()),
			zap.String("topic", task.Topic),
			zap.Int("attempts", attempts),
			zap.Error(err))
		if markErr := w.repo.MarkFailed(ctx, task.ID, attempts, err.Error()); markErr != nil {
			w.log.Error("failed to record outbox failure", zap.Error(markErr))
		}
		return
	}

	if err := w.repo.MarkDone(ctx, task.ID); err != nil {
		// Delivery succeeded but bookkeeping failed; the task will be
		// redelivered, which idempotent consumers tolerate.
		w.log.Error("failed to mark outbox task done", zap.Error(err))
		return
	}
	observability.OutboxPublishedTotal.WithLabelValues(task.Topic).Inc()
}
