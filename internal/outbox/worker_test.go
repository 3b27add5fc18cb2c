// README: Worker delivery tests against an in-memory task source.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"swoop/internal/types"
)

type memTaskSource struct {
	mu      sync.Mutex
	pending []*Task
	done    []uuid.UUID
	failed  map[uuid.UUID]int
	lastErr map[uuid.UUID]string
}

func newMemTaskSource(tasks ...*Task) *memTaskSource {
	return &memTaskSource{
		pending: tasks,
		failed:  make(map[uuid.UUID]int),
		lastErr: make(map[uuid.UUID]string),
	}
}

func (m *memTaskSource) ClaimBatch(_ context.Context, limit, maxAttempts int) ([]*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var batch []*Task
	for _, task := range m.pending {
		if len(batch) >= limit {
			break
		}
		if task.Status == TaskStatusDone || task.Attempts >= maxAttempts {
			continue
		}
		task.Status = TaskStatusProcessing
		batch = append(batch, task)
	}
	return batch, nil
}

func (m *memTaskSource) MarkDone(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done = append(m.done, id)
	for _, task := range m.pending {
		if task.ID == id {
			task.Status = TaskStatusDone
		}
	}
	return nil
}

func (m *memTaskSource) MarkFailed(_ context.Context, id uuid.UUID, attempts int, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[id] = attempts
	m.lastErr[id] = lastError
	for _, task := range m.pending {
		if task.ID == id {
			task.Status = TaskStatusFailed
			task.Attempts = attempts
		}
	}
	return nil
}

func notificationTask(t *testing.T) *Task {
	t.Helper()
	task, err := NewTask(TopicNotifications, NotificationPayload{
		Type:       "offer_accepted",
		OfferID:    types.ID("o1"),
		BusinessID: types.ID("b1"),
		RiderID:    types.ID("r1"),
		Status:     "accepted",
	})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	return task
}

func newTestWorker(src taskSource, handlers map[string]Handler) *Worker {
	return &Worker{
		repo:     src,
		handlers: handlers,
		cfg:      WorkerConfig{PollInterval: time.Millisecond, BatchSize: 10, MaxAttempts: 3},
		log:      zap.NewNop(),
	}
}

func TestWorkerDeliversAndMarksDone(t *testing.T) {
	task := notificationTask(t)
	src := newMemTaskSource(task)

	var delivered []string
	worker := newTestWorker(src, map[string]Handler{
		TopicNotifications: func(_ context.Context, key string, payload json.RawMessage) error {
			var p NotificationPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return err
			}
			delivered = append(delivered, p.Type+":"+key)
			return nil
		},
	})

	if err := worker.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(delivered) != 1 || delivered[0] != "offer_accepted:"+task.ID.String() {
		t.Fatalf("delivered = %v", delivered)
	}
	if len(src.done) != 1 || src.done[0] != task.ID {
		t.Fatalf("task not marked done: %v", src.done)
	}
}

func TestWorkerRecordsFailureAndRetries(t *testing.T) {
	task := notificationTask(t)
	src := newMemTaskSource(task)

	calls := 0
	worker := newTestWorker(src, map[string]Handler{
		TopicNotifications: func(context.Context, string, json.RawMessage) error {
			calls++
			if calls == 1 {
				return errors.New("broker unavailable")
			}
			return nil
		},
	})

	ctx := context.Background()
	if err := worker.processBatch(ctx); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if src.failed[task.ID] != 1 || src.lastErr[task.ID] != "broker unavailable" {
		t.Fatalf("failure not recorded: attempts=%d err=%q", src.failed[task.ID], src.lastErr[task.ID])
	}

	// failed-with-attempts-left tasks are reclaimed on the next poll
	if err := worker.processBatch(ctx); err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if calls != 2 {
		t.Fatalf("handler calls = %d, want 2", calls)
	}
	if len(src.done) != 1 {
		t.Fatalf("task not marked done after retry")
	}
}

func TestWorkerParksTasksWithoutHandler(t *testing.T) {
	task, err := NewTask("orphan-topic", NotificationPayload{Type: "x"})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	src := newMemTaskSource(task)
	worker := newTestWorker(src, map[string]Handler{})

	if err := worker.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if src.failed[task.ID] != worker.cfg.MaxAttempts {
		t.Fatalf("orphan task not parked: attempts=%d", src.failed[task.ID])
	}
	// parked at max attempts means it is never claimed again
	batch, _ := src.ClaimBatch(context.Background(), 10, worker.cfg.MaxAttempts)
	if len(batch) != 0 {
		t.Fatalf("parked task was reclaimed: %v", batch)
	}
}

func TestWorkerRunFloorsNonPositivePollInterval(t *testing.T) {
	task := notificationTask(t)
	src := newMemTaskSource(task)

	delivered := make(chan struct{}, 1)
	worker := newTestWorker(src, map[string]Handler{
		TopicNotifications: func(context.Context, string, json.RawMessage) error {
			select {
			case delivered <- struct{}{}:
			default:
			}
			return nil
		},
	})
	worker.cfg.PollInterval = 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- worker.Run(ctx) }()

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never polled with a zero interval")
	}
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("run returned %v", err)
	}
}

func TestWorkerStopsMidBatchOnCancel(t *testing.T) {
	first := notificationTask(t)
	second := notificationTask(t)
	src := newMemTaskSource(first, second)

	ctx, cancel := context.WithCancel(context.Background())
	worker := newTestWorker(src, map[string]Handler{
		TopicNotifications: func(context.Context, string, json.RawMessage) error {
			cancel()
			return nil
		},
	})

	if err := worker.processBatch(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(src.done) != 1 {
		t.Fatalf("expected exactly the first task delivered, done=%v", src.done)
	}
}
