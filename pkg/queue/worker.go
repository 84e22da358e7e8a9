package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/taskpub/pkg/logger"
)

// WorkerRepository defines the persistence operations a Worker needs.
type WorkerRepository interface {
	// ClaimTask atomically claims the next available task from the given queues.
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error)

	// CompleteTask marks the task as completed and stores its result.
	CompleteTask(ctx context.Context, taskID uuid.UUID, result []byte) error

	// FailTask records the error, increments the retry count and either
	// requeues the task with backoff or marks it failed for good.
	FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error

	// MoveToDLQ parks a task in the dead letter queue.
	MoveToDLQ(ctx context.Context, taskID uuid.UUID) error

	// ExtendLock extends the lock of a long-running task.
	ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error
}

// Worker claims pending tasks and invokes the matching jobs from the shared
// registry, storing their results back into the repository.
type Worker struct {
	repo     WorkerRepository
	jobs     *JobRegistry
	queues   []string
	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	stopMu   sync.Mutex // serializes stopping state with WaitGroup adds

	pullInterval time.Duration
	lockTimeout  time.Duration
	logger       *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

// NewWorker creates a new task worker drawing job implementations from jobs.
func NewWorker(repo WorkerRepository, jobs *JobRegistry, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	if jobs == nil {
		return nil, ErrRegistryNil
	}

	options := &workerOptions{
		queues:             []string{DefaultQueueName},
		pullInterval:       time.Second,
		lockTimeout:        5 * time.Minute,
		maxConcurrentTasks: 1,
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Worker{
		repo:         repo,
		jobs:         jobs,
		queues:       options.queues,
		workerID:     uuid.New(),
		sem:          make(chan struct{}, options.maxConcurrentTasks),
		pullInterval: options.pullInterval,
		lockTimeout:  options.lockTimeout,
		logger:       options.logger,
	}, nil
}

// Start begins processing tasks in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return fmt.Errorf("worker already started")
	}
	if w.jobs.Len() == 0 {
		w.mu.Unlock()
		return ErrNoJobs
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.stopping.Store(false)
	go w.run()

	w.logger.Info("worker started",
		logger.WorkerID(w.workerID),
		slog.Any("queues", w.queues),
		slog.Int("max_concurrent", cap(w.sem)))

	return nil
}

// Stop gracefully shuts down the worker, waiting for active tasks.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return fmt.Errorf("worker not started")
	}

	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()

	w.logger.Info("worker stopped", logger.WorkerID(w.workerID))
	return nil
}

// Run returns a function suitable for errgroup-style supervision.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

func (w *Worker) run() {
	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			select {
			case w.sem <- struct{}{}:
				// stopMu ensures no WaitGroup add races Stop's Wait.
				w.stopMu.Lock()
				if w.stopping.Load() {
					w.stopMu.Unlock()
					<-w.sem
					return
				}
				w.wg.Add(1)
				w.stopMu.Unlock()

				go func() {
					defer w.wg.Done()
					defer func() { <-w.sem }()

					if err := w.pullAndProcess(); err != nil && !errors.Is(err, ErrJobNotFound) {
						w.logger.Error("failed to process task",
							logger.WorkerID(w.workerID),
							logger.Error(err))
					}
				}()
			default:
				// All slots busy, skip this tick.
			}
		}
	}
}

func (w *Worker) pullAndProcess() error {
	task, err := w.repo.ClaimTask(w.ctx, w.workerID, w.queues, w.lockTimeout)
	if err != nil {
		if errors.Is(err, ErrNoTaskToClaim) {
			return nil
		}
		return fmt.Errorf("failed to claim task: %w", err)
	}
	if task == nil {
		return nil
	}

	w.logger.Debug("claimed task",
		logger.WorkerID(w.workerID),
		logger.TaskID(task.ID),
		logger.TaskName(task.TaskName),
		logger.Queue(task.Queue))

	return w.processTask(task)
}

func (w *Worker) processTask(task *Task) (retErr error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic in job: %v", r)
			w.logger.Error("job panicked",
				logger.WorkerID(w.workerID),
				logger.TaskID(task.ID),
				logger.TaskName(task.TaskName),
				slog.Any("panic", r))
			_ = w.handleTaskFailure(task, retErr, time.Since(start))
		}
	}()

	job, ok := w.jobs.Lookup(task.TaskName)
	if !ok {
		return w.handleMissingJob(task)
	}

	// The execution context is detached from the worker lifecycle so graceful
	// shutdown lets in-flight tasks finish.
	ctx, cancel := context.WithTimeout(context.Background(), w.lockTimeout)
	defer cancel()

	value, err := job.Invoke(ctx, task.Args)
	duration := time.Since(start)

	if err != nil {
		return w.handleTaskFailure(task, err, duration)
	}

	result, err := json.Marshal(value)
	if err != nil {
		return w.handleTaskFailure(task, errors.Join(ErrResultMarshal, err), duration)
	}

	return w.handleTaskSuccess(task, result, duration)
}

// handleMissingJob parks the task in the DLQ right away: without an
// implementation every retry would fail identically, so the task waits there
// until an operator deploys the job and requeues it.
func (w *Worker) handleMissingJob(task *Task) error {
	w.logger.Error("no job registered for task name",
		logger.WorkerID(w.workerID),
		logger.TaskID(task.ID),
		logger.TaskName(task.TaskName))

	ctx := w.storeContext()
	errorMsg := "no job registered for task name: " + task.TaskName
	if err := w.repo.FailTask(ctx, task.ID, errorMsg); err != nil {
		return fmt.Errorf("failed to mark task %s as failed: %w", task.ID, err)
	}
	if err := w.repo.MoveToDLQ(ctx, task.ID); err != nil {
		return fmt.Errorf("failed to move task %s to DLQ: %w", task.ID, err)
	}
	return ErrJobNotFound
}

// storeContext returns the context used to persist task outcomes. Stop
// cancels w.ctx before waiting on in-flight tasks, so outcome writes must
// not inherit that cancellation.
func (w *Worker) storeContext() context.Context {
	return context.WithoutCancel(w.ctx)
}

func (w *Worker) handleTaskFailure(task *Task, execErr error, duration time.Duration) error {
	w.logger.Error("task failed",
		logger.WorkerID(w.workerID),
		logger.TaskID(task.ID),
		logger.TaskName(task.TaskName),
		slog.Int("retry_count", int(task.RetryCount)),
		slog.Int("max_retries", int(task.MaxRetries)),
		slog.Duration("duration", duration),
		logger.Error(execErr))

	ctx := w.storeContext()

	// FailTask records the error first; the repository decides between a
	// backed-off requeue and a final failed state.
	if err := w.repo.FailTask(ctx, task.ID, execErr.Error()); err != nil {
		return fmt.Errorf("failed to update task %s status to failed: %w", task.ID, err)
	}

	if task.RetryCount >= task.MaxRetries {
		if err := w.repo.MoveToDLQ(ctx, task.ID); err != nil {
			return fmt.Errorf("failed to move task %s to DLQ after max retries: %w", task.ID, err)
		}
		w.logger.Warn("task moved to dead letter queue",
			logger.WorkerID(w.workerID),
			logger.TaskID(task.ID),
			logger.TaskName(task.TaskName))
	}

	return nil
}

func (w *Worker) handleTaskSuccess(task *Task, result []byte, duration time.Duration) error {
	if err := w.repo.CompleteTask(w.storeContext(), task.ID, result); err != nil {
		return fmt.Errorf("failed to mark task %s as completed: %w", task.ID, err)
	}

	w.logger.Info("task completed",
		logger.WorkerID(w.workerID),
		logger.TaskID(task.ID),
		logger.TaskName(task.TaskName),
		logger.Queue(task.Queue),
		slog.Duration("duration", duration))

	return nil
}

// ExtendLockForTask extends the lock of a long-running task. Call it
// periodically from jobs that outlive the configured lock timeout.
func (w *Worker) ExtendLockForTask(ctx context.Context, taskID uuid.UUID, extension time.Duration) error {
	return w.repo.ExtendLock(ctx, taskID, extension)
}

// WorkerInfo returns the worker id together with host and pid.
func (w *Worker) WorkerInfo() (id string, hostname string, pid int) {
	hostname, _ = os.Hostname()
	return w.workerID.String(), hostname, os.Getpid()
}
