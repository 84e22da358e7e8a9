package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig configures the PostgreSQL connection used by PostgresStorage.
type PostgresConfig struct {
	ConnectionString string        `env:"TASKPUB_PG_CONN_URL,required"`
	MaxOpenConns     int32         `env:"TASKPUB_PG_MAX_OPEN_CONNS" envDefault:"10"`
	MinIdleConns     int32         `env:"TASKPUB_PG_MIN_IDLE_CONNS" envDefault:"2"`
	RetryAttempts    int           `env:"TASKPUB_PG_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval    time.Duration `env:"TASKPUB_PG_RETRY_INTERVAL" envDefault:"5s"`
}

var (
	// ErrPostgresConfig is returned when the connection string cannot be parsed.
	ErrPostgresConfig = errors.New("failed to parse postgres connection string")

	// ErrPostgresNotReady is returned when no connection could be established
	// within the configured retry budget.
	ErrPostgresNotReady = errors.New("postgres did not become ready within the given time period")
)

// ConnectPostgres establishes a pgx connection pool with retries per cfg.
func ConnectPostgres(ctx context.Context, cfg PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, errors.Join(ErrPostgresConfig, err)
	}
	poolCfg.MaxConns = cfg.MaxOpenConns
	poolCfg.MinConns = cfg.MinIdleConns

	for i := 0; i < cfg.RetryAttempts; i++ {
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrPostgresNotReady, ctx.Err())
		case <-time.After(time.Duration(i+1) * cfg.RetryInterval):
		}
	}

	return nil, ErrPostgresNotReady
}

// PostgresStorage implements the queue repository interfaces on PostgreSQL.
// Claiming relies on FOR UPDATE SKIP LOCKED so any number of workers can pull
// from the same table without coordination.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates a PostgreSQL-backed repository on an existing pool.
func NewPostgresStorage(pool *pgxpool.Pool) (*PostgresStorage, error) {
	if pool == nil {
		return nil, ErrRepositoryNil
	}
	return &PostgresStorage{pool: pool}, nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS taskpub_tasks (
	id           UUID PRIMARY KEY,
	group_id     UUID        NOT NULL,
	queue        TEXT        NOT NULL,
	task_name    TEXT        NOT NULL,
	args         JSONB       NOT NULL DEFAULT '[]',
	status       TEXT        NOT NULL,
	priority     SMALLINT    NOT NULL,
	retry_count  SMALLINT    NOT NULL DEFAULT 0,
	max_retries  SMALLINT    NOT NULL DEFAULT 3,
	result       JSONB,
	scheduled_at TIMESTAMPTZ NOT NULL,
	locked_until TIMESTAMPTZ,
	locked_by    UUID,
	processed_at TIMESTAMPTZ,
	error        TEXT,
	created_at   TIMESTAMPTZ NOT NULL,
	seq          BIGINT GENERATED ALWAYS AS IDENTITY
);
CREATE INDEX IF NOT EXISTS taskpub_tasks_claim_idx
	ON taskpub_tasks (queue, status, priority DESC, scheduled_at ASC);
CREATE INDEX IF NOT EXISTS taskpub_tasks_group_idx
	ON taskpub_tasks (group_id, seq);

CREATE TABLE IF NOT EXISTS taskpub_dlq (
	id          UUID PRIMARY KEY,
	task_id     UUID        NOT NULL,
	group_id    UUID        NOT NULL,
	queue       TEXT        NOT NULL,
	task_name   TEXT        NOT NULL,
	args        JSONB       NOT NULL DEFAULT '[]',
	priority    SMALLINT    NOT NULL,
	error       TEXT        NOT NULL DEFAULT '',
	retry_count SMALLINT    NOT NULL,
	failed_at   TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);`

// EnsureSchema creates the queue tables and indexes if they do not exist.
func (s *PostgresStorage) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create queue schema: %w", err)
	}
	return nil
}

// CreateTasks implements DispatcherRepository.
func (s *PostgresStorage) CreateTasks(ctx context.Context, tasks []*Task) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, task := range tasks {
		if _, err := tx.Exec(ctx, `
			INSERT INTO taskpub_tasks
				(id, group_id, queue, task_name, args, status, priority,
				 retry_count, max_retries, scheduled_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			task.ID, task.GroupID, task.Queue, task.TaskName, task.Args,
			task.Status, task.Priority, task.RetryCount, task.MaxRetries,
			task.ScheduledAt, task.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert task %s: %w", task.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit tasks: %w", err)
	}
	return nil
}

const taskColumns = `id, group_id, queue, task_name, args, status, priority,
	retry_count, max_retries, result, scheduled_at, locked_until, locked_by,
	processed_at, error, created_at`

func scanTask(row pgx.Row) (*Task, error) {
	var task Task
	err := row.Scan(
		&task.ID, &task.GroupID, &task.Queue, &task.TaskName, &task.Args,
		&task.Status, &task.Priority, &task.RetryCount, &task.MaxRetries,
		&task.Result, &task.ScheduledAt, &task.LockedUntil, &task.LockedBy,
		&task.ProcessedAt, &task.Error, &task.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// GetGroupTasks implements DispatcherRepository.
func (s *PostgresStorage) GetGroupTasks(ctx context.Context, groupID uuid.UUID) ([]*Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM taskpub_tasks WHERE group_id = $1 ORDER BY seq`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load group %s: %w", groupID, err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task of group %s: %w", groupID, err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read group %s: %w", groupID, err)
	}
	if len(tasks) == 0 {
		return nil, ErrGroupNotFound
	}
	return tasks, nil
}

// CancelGroup implements DispatcherRepository.
func (s *PostgresStorage) CancelGroup(ctx context.Context, groupID uuid.UUID) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE taskpub_tasks SET status = $1
		WHERE group_id = $2 AND status = $3`,
		TaskStatusCancelled, groupID, TaskStatusPending,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel group %s: %w", groupID, err)
	}
	return int(tag.RowsAffected()), nil
}

// ClaimTask implements WorkerRepository. Lock expiry is handled inline: the
// claimable set includes processing rows whose lock has lapsed.
func (s *PostgresStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE taskpub_tasks SET
			status = $1,
			locked_until = now() + $2,
			locked_by = $3
		WHERE id = (
			SELECT id FROM taskpub_tasks
			WHERE queue = ANY($4)
			  AND scheduled_at <= now()
			  AND (status = $5 OR (status = $1 AND locked_until < now()))
			ORDER BY priority DESC, scheduled_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskColumns,
		TaskStatusProcessing, lockDuration, workerID, queues, TaskStatusPending,
	)

	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoTaskToClaim
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	return task, nil
}

// CompleteTask implements WorkerRepository.
func (s *PostgresStorage) CompleteTask(ctx context.Context, taskID uuid.UUID, result []byte) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE taskpub_tasks SET
			status = $1,
			result = $2,
			processed_at = now(),
			locked_until = NULL,
			locked_by = NULL
		WHERE id = $3 AND status = $4`,
		TaskStatusCompleted, result, taskID, TaskStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to complete task %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s is not in processing state", taskID)
	}
	return nil
}

// FailTask implements WorkerRepository.
func (s *PostgresStorage) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE taskpub_tasks SET
			retry_count = retry_count + 1,
			error = $1,
			locked_until = NULL,
			locked_by = NULL,
			status = CASE WHEN retry_count + 1 >= max_retries THEN $2 ELSE $3 END,
			scheduled_at = CASE WHEN retry_count + 1 >= max_retries
				THEN scheduled_at
				ELSE now() + (retry_count + 1) * interval '30 seconds'
			END
		WHERE id = $4 AND status = $5`,
		errorMsg, TaskStatusFailed, TaskStatusPending, taskID, TaskStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to record failure of task %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s is not in processing state", taskID)
	}
	return nil
}

// MoveToDLQ implements WorkerRepository. The task row keeps its final failed
// status so group handles still observe the outcome.
func (s *PostgresStorage) MoveToDLQ(ctx context.Context, taskID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO taskpub_dlq
			(id, task_id, group_id, queue, task_name, args, priority, error,
			 retry_count, failed_at, created_at)
		SELECT $1, id, group_id, queue, task_name, args, priority,
			COALESCE(error, ''), retry_count, now(), now()
		FROM taskpub_tasks WHERE id = $2`,
		uuid.New(), taskID,
	); err != nil {
		return fmt.Errorf("failed to park task %s in DLQ: %w", taskID, err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE taskpub_tasks SET status = $1 WHERE id = $2`,
		TaskStatusFailed, taskID,
	); err != nil {
		return fmt.Errorf("failed to finalize task %s: %w", taskID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit DLQ move of task %s: %w", taskID, err)
	}
	return nil
}

// ExtendLock implements WorkerRepository.
func (s *PostgresStorage) ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE taskpub_tasks SET locked_until = now() + $1
		WHERE id = $2 AND status = $3`,
		duration, taskID, TaskStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to extend lock of task %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s is not in processing state", taskID)
	}
	return nil
}
