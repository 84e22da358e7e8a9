package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis connection used by RedisStorage.
type RedisConfig struct {
	ConnectionURL  string        `env:"TASKPUB_REDIS_URL" envDefault:"redis://localhost:6379/0"` // URL in the format "redis://:password@localhost:6379/0"
	RetryAttempts  int           `env:"TASKPUB_REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"TASKPUB_REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"TASKPUB_REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
	KeyPrefix      string        `env:"TASKPUB_REDIS_KEY_PREFIX" envDefault:"taskpub"`
}

var (
	// ErrRedisConnString is returned when the Redis URL cannot be parsed.
	ErrRedisConnString = errors.New("failed to parse redis connection string")

	// ErrRedisNotReady is returned when the server does not answer pings
	// within the configured retry budget.
	ErrRedisNotReady = errors.New("redis did not become ready within the given time period")
)

// ConnectRedis establishes a Redis connection with retries per cfg.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opt, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrRedisConnString, err)
	}

	for i := 0; i < cfg.RetryAttempts; i++ {
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, ErrRedisNotReady
}

// RedisStorage implements the queue repository interfaces on top of Redis,
// letting dispatchers and workers run in separate processes.
//
// Layout: each task is a JSON string keyed by id; per-queue pending and
// processing sorted sets hold task ids scored by due time and lock expiry
// respectively; a per-group list preserves creation order for result polling;
// dead tasks go to a single DLQ list.
type RedisStorage struct {
	client redis.UniversalClient
	prefix string
}

// RedisStorageOption configures a RedisStorage.
type RedisStorageOption func(*RedisStorage)

// WithKeyPrefix overrides the default "taskpub" key prefix.
func WithKeyPrefix(prefix string) RedisStorageOption {
	return func(s *RedisStorage) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStorage creates a Redis-backed repository on an existing client.
func NewRedisStorage(client redis.UniversalClient, opts ...RedisStorageOption) (*RedisStorage, error) {
	if client == nil {
		return nil, ErrRepositoryNil
	}
	s := &RedisStorage{client: client, prefix: "taskpub"}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RedisStorage) taskKey(id uuid.UUID) string {
	return s.prefix + ":task:" + id.String()
}

func (s *RedisStorage) pendingKey(queue string) string {
	return s.prefix + ":pending:" + queue
}

func (s *RedisStorage) processingKey(queue string) string {
	return s.prefix + ":processing:" + queue
}

func (s *RedisStorage) groupKey(groupID uuid.UUID) string {
	return s.prefix + ":group:" + groupID.String()
}

func (s *RedisStorage) dlqKey() string {
	return s.prefix + ":dlq"
}

// CreateTasks implements DispatcherRepository.
func (s *RedisStorage) CreateTasks(ctx context.Context, tasks []*Task) error {
	pipe := s.client.TxPipeline()
	for _, task := range tasks {
		raw, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("failed to encode task %s: %w", task.ID, err)
		}
		pipe.Set(ctx, s.taskKey(task.ID), raw, 0)
		pipe.ZAdd(ctx, s.pendingKey(task.Queue), redis.Z{
			Score:  float64(task.ScheduledAt.UnixMilli()),
			Member: task.ID.String(),
		})
		pipe.RPush(ctx, s.groupKey(task.GroupID), task.ID.String())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store tasks: %w", err)
	}
	return nil
}

// GetGroupTasks implements DispatcherRepository.
func (s *RedisStorage) GetGroupTasks(ctx context.Context, groupID uuid.UUID) ([]*Task, error) {
	ids, err := s.client.LRange(ctx, s.groupKey(groupID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load group %s: %w", groupID, err)
	}
	if len(ids) == 0 {
		return nil, ErrGroupNotFound
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.prefix + ":task:" + id
	}
	raws, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks of group %s: %w", groupID, err)
	}

	tasks := make([]*Task, 0, len(raws))
	for _, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			continue // task key expired or deleted
		}
		var task Task
		if err := json.Unmarshal([]byte(str), &task); err != nil {
			return nil, fmt.Errorf("failed to decode task of group %s: %w", groupID, err)
		}
		tasks = append(tasks, &task)
	}
	return tasks, nil
}

// CancelGroup implements DispatcherRepository. Cancellation is best-effort: a
// task claimed between the read and the update simply runs to completion.
func (s *RedisStorage) CancelGroup(ctx context.Context, groupID uuid.UUID) (int, error) {
	tasks, err := s.GetGroupTasks(ctx, groupID)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, task := range tasks {
		if task.Status != TaskStatusPending {
			continue
		}
		// Only the caller that removes the id from the pending set owns the
		// transition; losing the race means a worker claimed the task first.
		removed, err := s.client.ZRem(ctx, s.pendingKey(task.Queue), task.ID.String()).Result()
		if err != nil {
			return cancelled, fmt.Errorf("failed to cancel task %s: %w", task.ID, err)
		}
		if removed == 0 {
			continue
		}
		task.Status = TaskStatusCancelled
		if err := s.setTask(ctx, task); err != nil {
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}

// ClaimTask implements WorkerRepository.
func (s *RedisStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	now := time.Now()

	for _, queue := range queues {
		if err := s.reapExpiredLocks(ctx, queue, now); err != nil {
			return nil, err
		}
	}

	var candidates []*Task
	for _, queue := range queues {
		ids, err := s.client.ZRangeByScore(ctx, s.pendingKey(queue), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   fmt.Sprintf("%d", now.UnixMilli()),
			Count: 32,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read pending queue %q: %w", queue, err)
		}
		for _, id := range ids {
			task, err := s.getTask(ctx, id)
			if err != nil {
				if errors.Is(err, ErrTaskNotFound) {
					continue
				}
				return nil, err
			}
			candidates = append(candidates, task)
		}
	}

	if len(candidates) == 0 {
		return nil, ErrNoTaskToClaim
	}

	slices.SortFunc(candidates, func(a, b *Task) int {
		if a.Priority != b.Priority {
			return int(b.Priority) - int(a.Priority)
		}
		return a.ScheduledAt.Compare(b.ScheduledAt)
	})

	for _, task := range candidates {
		// ZRem is the claim: exactly one contender removes the member.
		removed, err := s.client.ZRem(ctx, s.pendingKey(task.Queue), task.ID.String()).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to claim task %s: %w", task.ID, err)
		}
		if removed == 0 {
			continue
		}

		lockUntil := now.Add(lockDuration)
		task.Status = TaskStatusProcessing
		task.LockedUntil = &lockUntil
		task.LockedBy = &workerID
		if err := s.setTask(ctx, task); err != nil {
			return nil, err
		}
		if err := s.client.ZAdd(ctx, s.processingKey(task.Queue), redis.Z{
			Score:  float64(lockUntil.UnixMilli()),
			Member: task.ID.String(),
		}).Err(); err != nil {
			return nil, fmt.Errorf("failed to track lock of task %s: %w", task.ID, err)
		}
		return task, nil
	}

	return nil, ErrNoTaskToClaim
}

// CompleteTask implements WorkerRepository.
func (s *RedisStorage) CompleteTask(ctx context.Context, taskID uuid.UUID, result []byte) error {
	task, err := s.getTask(ctx, taskID.String())
	if err != nil {
		return err
	}
	if task.Status != TaskStatusProcessing {
		return fmt.Errorf("task %s is not in processing state", taskID)
	}

	now := time.Now()
	task.Status = TaskStatusCompleted
	task.Result = result
	task.ProcessedAt = &now
	task.LockedUntil = nil
	task.LockedBy = nil

	if err := s.setTask(ctx, task); err != nil {
		return err
	}
	return s.client.ZRem(ctx, s.processingKey(task.Queue), taskID.String()).Err()
}

// FailTask implements WorkerRepository.
func (s *RedisStorage) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error {
	task, err := s.getTask(ctx, taskID.String())
	if err != nil {
		return err
	}
	if task.Status != TaskStatusProcessing {
		return fmt.Errorf("task %s is not in processing state", taskID)
	}

	task.RetryCount++
	task.Error = &errorMsg
	task.LockedUntil = nil
	task.LockedBy = nil

	if err := s.client.ZRem(ctx, s.processingKey(task.Queue), taskID.String()).Err(); err != nil {
		return fmt.Errorf("failed to release lock of task %s: %w", taskID, err)
	}

	if task.RetryCount >= task.MaxRetries {
		task.Status = TaskStatusFailed
		return s.setTask(ctx, task)
	}

	task.Status = TaskStatusPending
	task.ScheduledAt = time.Now().Add(time.Duration(task.RetryCount) * 30 * time.Second)
	if err := s.setTask(ctx, task); err != nil {
		return err
	}
	return s.client.ZAdd(ctx, s.pendingKey(task.Queue), redis.Z{
		Score:  float64(task.ScheduledAt.UnixMilli()),
		Member: taskID.String(),
	}).Err()
}

// MoveToDLQ implements WorkerRepository. The task record keeps its final
// failed status so group handles still observe the outcome.
func (s *RedisStorage) MoveToDLQ(ctx context.Context, taskID uuid.UUID) error {
	task, err := s.getTask(ctx, taskID.String())
	if err != nil {
		return err
	}

	dead := &DeadTask{
		ID:         uuid.New(),
		TaskID:     task.ID,
		GroupID:    task.GroupID,
		Queue:      task.Queue,
		TaskName:   task.TaskName,
		Args:       task.Args,
		Priority:   task.Priority,
		RetryCount: task.RetryCount,
		FailedAt:   time.Now(),
		CreatedAt:  time.Now(),
	}
	if task.Error != nil {
		dead.Error = *task.Error
	}
	raw, err := json.Marshal(dead)
	if err != nil {
		return fmt.Errorf("failed to encode dead task %s: %w", taskID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.dlqKey(), raw)
	pipe.ZRem(ctx, s.pendingKey(task.Queue), taskID.String())
	pipe.ZRem(ctx, s.processingKey(task.Queue), taskID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to move task %s to DLQ: %w", taskID, err)
	}

	if task.Status != TaskStatusFailed {
		task.Status = TaskStatusFailed
		return s.setTask(ctx, task)
	}
	return nil
}

// ExtendLock implements WorkerRepository.
func (s *RedisStorage) ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error {
	task, err := s.getTask(ctx, taskID.String())
	if err != nil {
		return err
	}
	if task.Status != TaskStatusProcessing {
		return fmt.Errorf("task %s is not in processing state", taskID)
	}

	lockUntil := time.Now().Add(duration)
	task.LockedUntil = &lockUntil
	if err := s.setTask(ctx, task); err != nil {
		return err
	}
	return s.client.ZAdd(ctx, s.processingKey(task.Queue), redis.Z{
		Score:  float64(lockUntil.UnixMilli()),
		Member: taskID.String(),
	}).Err()
}

// reapExpiredLocks returns tasks whose lock lapsed back to the pending set so
// work claimed by a dead worker is retried.
func (s *RedisStorage) reapExpiredLocks(ctx context.Context, queue string, now time.Time) error {
	ids, err := s.client.ZRangeByScore(ctx, s.processingKey(queue), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.UnixMilli()),
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to read expired locks of queue %q: %w", queue, err)
	}

	for _, id := range ids {
		removed, err := s.client.ZRem(ctx, s.processingKey(queue), id).Result()
		if err != nil || removed == 0 {
			continue
		}
		task, err := s.getTask(ctx, id)
		if err != nil {
			continue
		}
		task.Status = TaskStatusPending
		task.LockedUntil = nil
		task.LockedBy = nil
		if err := s.setTask(ctx, task); err != nil {
			return err
		}
		if err := s.client.ZAdd(ctx, s.pendingKey(queue), redis.Z{
			Score:  float64(task.ScheduledAt.UnixMilli()),
			Member: id,
		}).Err(); err != nil {
			return fmt.Errorf("failed to requeue task %s: %w", id, err)
		}
	}
	return nil
}

func (s *RedisStorage) getTask(ctx context.Context, id string) (*Task, error) {
	raw, err := s.client.Get(ctx, s.prefix+":task:"+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", id, err)
	}
	var task Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return nil, fmt.Errorf("failed to decode task %s: %w", id, err)
	}
	return &task, nil
}

func (s *RedisStorage) setTask(ctx context.Context, task *Task) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task %s: %w", task.ID, err)
	}
	if err := s.client.Set(ctx, s.taskKey(task.ID), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to store task %s: %w", task.ID, err)
	}
	return nil
}
