package queue

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements every queue repository interface in memory. It is
// meant for tests and single-process deployments; use the Redis or Postgres
// repositories when dispatchers and workers live in separate processes.
type MemoryStorage struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*Task
	dlq   map[uuid.UUID]*DeadTask

	// Indexes for efficient queries
	byStatus map[TaskStatus][]uuid.UUID
	byGroup  map[uuid.UUID][]uuid.UUID // creation order within a group

	lockTicker *time.Ticker
	done       chan struct{}
	closeOnce  sync.Once
}

// NewMemoryStorage creates a new in-memory storage implementation.
func NewMemoryStorage() *MemoryStorage {
	ms := &MemoryStorage{
		tasks:    make(map[uuid.UUID]*Task),
		dlq:      make(map[uuid.UUID]*DeadTask),
		byStatus: make(map[TaskStatus][]uuid.UUID),
		byGroup:  make(map[uuid.UUID][]uuid.UUID),
		done:     make(chan struct{}),
	}

	// Recovers tasks locked by workers that died without releasing them.
	ms.lockTicker = time.NewTicker(time.Second)
	go ms.lockExpirationLoop()

	return ms
}

// Close stops the background lock-expiration goroutine.
func (ms *MemoryStorage) Close() error {
	ms.closeOnce.Do(func() {
		close(ms.done)
		ms.lockTicker.Stop()
	})
	return nil
}

// CreateTasks implements DispatcherRepository.
func (ms *MemoryStorage) CreateTasks(ctx context.Context, tasks []*Task) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for _, task := range tasks {
		if task == nil {
			return fmt.Errorf("task cannot be nil")
		}
		if _, exists := ms.tasks[task.ID]; exists {
			return fmt.Errorf("task with ID %s already exists", task.ID)
		}
	}

	for _, task := range tasks {
		taskCopy := *task
		ms.tasks[task.ID] = &taskCopy
		ms.byStatus[task.Status] = append(ms.byStatus[task.Status], task.ID)
		ms.byGroup[task.GroupID] = append(ms.byGroup[task.GroupID], task.ID)
	}

	return nil
}

// GetGroupTasks implements DispatcherRepository.
func (ms *MemoryStorage) GetGroupTasks(ctx context.Context, groupID uuid.UUID) ([]*Task, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	ids, ok := ms.byGroup[groupID]
	if !ok {
		return nil, ErrGroupNotFound
	}

	tasks := make([]*Task, 0, len(ids))
	for _, id := range ids {
		taskCopy := *ms.tasks[id]
		tasks = append(tasks, &taskCopy)
	}
	return tasks, nil
}

// CancelGroup implements DispatcherRepository.
func (ms *MemoryStorage) CancelGroup(ctx context.Context, groupID uuid.UUID) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ids, ok := ms.byGroup[groupID]
	if !ok {
		return 0, ErrGroupNotFound
	}

	cancelled := 0
	for _, id := range ids {
		task := ms.tasks[id]
		if task.Status != TaskStatusPending {
			continue
		}
		task.Status = TaskStatusCancelled
		ms.removeFromStatusIndex(id, TaskStatusPending)
		ms.byStatus[TaskStatusCancelled] = append(ms.byStatus[TaskStatusCancelled], id)
		cancelled++
	}
	return cancelled, nil
}

// ClaimTask implements WorkerRepository.
func (ms *MemoryStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	var bestTask *Task
	var bestPriority Priority = -1

	// Priority first, earliest schedule second, so urgent work wins while
	// same-priority tasks stay fair.
	for _, taskID := range ms.byStatus[TaskStatusPending] {
		task := ms.tasks[taskID]

		if !slices.Contains(queues, task.Queue) {
			continue
		}
		if task.ScheduledAt.After(now) {
			continue
		}
		if task.LockedUntil != nil && task.LockedUntil.After(now) {
			continue
		}

		if bestTask == nil ||
			task.Priority > bestPriority ||
			(task.Priority == bestPriority && task.ScheduledAt.Before(bestTask.ScheduledAt)) {
			bestTask = task
			bestPriority = task.Priority
		}
	}

	if bestTask == nil {
		return nil, ErrNoTaskToClaim
	}

	lockUntil := now.Add(lockDuration)
	bestTask.Status = TaskStatusProcessing
	bestTask.LockedUntil = &lockUntil
	bestTask.LockedBy = &workerID

	ms.removeFromStatusIndex(bestTask.ID, TaskStatusPending)
	ms.byStatus[TaskStatusProcessing] = append(ms.byStatus[TaskStatusProcessing], bestTask.ID)

	taskCopy := *bestTask
	return &taskCopy, nil
}

// CompleteTask implements WorkerRepository.
func (ms *MemoryStorage) CompleteTask(ctx context.Context, taskID uuid.UUID, result []byte) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, exists := ms.tasks[taskID]
	if !exists {
		return ErrTaskNotFound
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

	ms.removeFromStatusIndex(taskID, TaskStatusProcessing)
	ms.byStatus[TaskStatusCompleted] = append(ms.byStatus[TaskStatusCompleted], taskID)

	return nil
}

// FailTask implements WorkerRepository.
func (ms *MemoryStorage) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, exists := ms.tasks[taskID]
	if !exists {
		return ErrTaskNotFound
	}
	if task.Status != TaskStatusProcessing {
		return fmt.Errorf("task %s is not in processing state", taskID)
	}

	task.RetryCount++
	task.Error = &errorMsg
	task.LockedUntil = nil
	task.LockedBy = nil

	if task.RetryCount >= task.MaxRetries {
		task.Status = TaskStatusFailed
		ms.removeFromStatusIndex(taskID, TaskStatusProcessing)
		ms.byStatus[TaskStatusFailed] = append(ms.byStatus[TaskStatusFailed], taskID)
	} else {
		task.Status = TaskStatusPending
		ms.removeFromStatusIndex(taskID, TaskStatusProcessing)
		ms.byStatus[TaskStatusPending] = append(ms.byStatus[TaskStatusPending], taskID)

		// Linear backoff keeps persistent failures from hammering workers.
		backoff := time.Duration(task.RetryCount) * 30 * time.Second
		task.ScheduledAt = time.Now().Add(backoff)
	}

	return nil
}

// MoveToDLQ implements WorkerRepository. The task stays in its group with a
// final failed status so AsyncResult handles still observe its outcome.
func (ms *MemoryStorage) MoveToDLQ(ctx context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, exists := ms.tasks[taskID]
	if !exists {
		return ErrTaskNotFound
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
	ms.dlq[dead.ID] = dead

	if task.Status != TaskStatusFailed {
		ms.removeFromStatusIndex(taskID, task.Status)
		task.Status = TaskStatusFailed
		ms.byStatus[TaskStatusFailed] = append(ms.byStatus[TaskStatusFailed], taskID)
	}

	return nil
}

// ExtendLock implements WorkerRepository.
func (ms *MemoryStorage) ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, exists := ms.tasks[taskID]
	if !exists {
		return ErrTaskNotFound
	}
	if task.Status != TaskStatusProcessing {
		return fmt.Errorf("task %s is not in processing state", taskID)
	}

	lockUntil := time.Now().Add(duration)
	task.LockedUntil = &lockUntil
	return nil
}

// DeadTasks returns a snapshot of the dead letter queue.
func (ms *MemoryStorage) DeadTasks() []*DeadTask {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	dead := make([]*DeadTask, 0, len(ms.dlq))
	for _, d := range ms.dlq {
		deadCopy := *d
		dead = append(dead, &deadCopy)
	}
	return dead
}

func (ms *MemoryStorage) removeFromStatusIndex(taskID uuid.UUID, status TaskStatus) {
	ms.byStatus[status] = slices.DeleteFunc(ms.byStatus[status], func(id uuid.UUID) bool {
		return id == taskID
	})
}

func (ms *MemoryStorage) lockExpirationLoop() {
	for {
		select {
		case <-ms.lockTicker.C:
			ms.expireLocks()
		case <-ms.done:
			return
		}
	}
}

// expireLocks resets processing tasks whose lock has lapsed back to pending,
// preserving their retry history, so work claimed by a dead worker is retried.
func (ms *MemoryStorage) expireLocks() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	for _, taskID := range ms.byStatus[TaskStatusProcessing] {
		task := ms.tasks[taskID]
		if task.LockedUntil != nil && task.LockedUntil.Before(now) {
			task.Status = TaskStatusPending
			task.LockedUntil = nil
			task.LockedBy = nil

			ms.removeFromStatusIndex(taskID, TaskStatusProcessing)
			ms.byStatus[TaskStatusPending] = append(ms.byStatus[TaskStatusPending], taskID)
		}
	}
}
