// README: Outbox repository backed by PostgreSQL.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

// CreateTx inserts a task inside the caller's transaction so the task commits
// or rolls back together with the state change that produced it.
func (r *Repo) CreateTx(ctx context.Context, tx pgx.Tx, task *Task) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	_, err := tx.Exec(ctx, `
        INSERT INTO outbox_tasks (id, status, topic, payload, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		task.ID, TaskStatusCreated, task.Topic, task.Payload, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox task: %w", err)
	}
	return nil
}

// ClaimBatch marks up to limit processable tasks as PROCESSING and returns
// them. SKIP LOCKED lets multiple workers drain the table concurrently.
func (r *Repo) ClaimBatch(ctx context.Context, limit, maxAttempts int) ([]*Task, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
        SELECT id, status, topic, payload, attempts, last_error, created_at, updated_at, completed_at
        FROM outbox_tasks
        WHERE status = $1 OR (status = $2 AND attempts < $3)
        ORDER BY updated_at ASC
        LIMIT $4
        FOR UPDATE SKIP LOCKED`,
		TaskStatusCreated, TaskStatusFailed, maxAttempts, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select processable tasks: %w", err)
	}

	var tasks []*Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Status, &t.Topic, &t.Payload, &t.Attempts, &t.LastError, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt); err != nil {
			rows.Close()
			return nil, err
		}
		tasks = append(tasks, &t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, t := range tasks {
		if _, err := tx.Exec(ctx, `
            UPDATE outbox_tasks SET status = $2, updated_at = NOW() WHERE id = $1`,
			t.ID, TaskStatusProcessing,
		); err != nil {
			return nil, fmt.Errorf("mark task %s processing: %w", t.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return tasks, nil
}

// MarkDone records a successfully delivered task.
func (r *Repo) MarkDone(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(ctx, `
        UPDATE outbox_tasks
        SET status = $2, completed_at = $3, last_error = NULL, updated_at = NOW()
        WHERE id = $1`,
		id, TaskStatusDone, now,
	)
	return err
}

// MarkFailed bumps attempts and records the delivery error for retry.
func (r *Repo) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string) error {
	_, err := r.db.Exec(ctx, `
        UPDATE outbox_tasks
        SET status = $2, attempts = $3, last_error = $4, updated_at = NOW()
        WHERE id = $1`,
		id, TaskStatusFailed, attempts, lastError,
	)
	return err
}
