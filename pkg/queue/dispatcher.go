package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/taskpub/pkg/async"
)

// DispatcherRepository defines the persistence operations a Dispatcher and
// the AsyncResult handles it produces need.
type DispatcherRepository interface {
	// CreateTasks persists all tasks of one dispatch group atomically.
	CreateTasks(ctx context.Context, tasks []*Task) error

	// GetGroupTasks returns every task of a group in creation order.
	GetGroupTasks(ctx context.Context, groupID uuid.UUID) ([]*Task, error)

	// CancelGroup marks all still-pending tasks of a group as cancelled and
	// returns how many were affected.
	CancelGroup(ctx context.Context, groupID uuid.UUID) (int, error)
}

// Dispatcher turns signature groups into persisted tasks (asynchronous path)
// or executes them in the calling context (synchronous path). It shares a
// JobRegistry with the workers that drain the queue.
type Dispatcher struct {
	repo            DispatcherRepository
	jobs            *JobRegistry
	defaultQueue    string
	defaultPriority Priority
	maxRetries      int8
	pollInterval    time.Duration
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(repo DispatcherRepository, jobs *JobRegistry, opts ...DispatcherOption) (*Dispatcher, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	if jobs == nil {
		return nil, ErrRegistryNil
	}

	options := &dispatcherOptions{
		defaultQueue:    DefaultQueueName,
		defaultPriority: PriorityDefault,
		maxRetries:      3,
		pollInterval:    200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Dispatcher{
		repo:            repo,
		jobs:            jobs,
		defaultQueue:    options.defaultQueue,
		defaultPriority: options.defaultPriority,
		maxRetries:      options.maxRetries,
		pollInterval:    options.pollInterval,
	}, nil
}

// Jobs returns the registry shared with workers.
func (d *Dispatcher) Jobs() *JobRegistry {
	return d.jobs
}

// Register adds a job to the shared registry. Registering the same name twice
// returns the originally registered instance.
func (d *Dispatcher) Register(j Job) (Job, error) {
	return d.jobs.Register(j)
}

// Dispatch persists one task per signature and returns a pollable handle for
// the whole group. An empty group never touches storage and yields an
// already-completed handle. Execution failures are not raised here; they are
// recorded per task and surface when the handle is inspected.
func (d *Dispatcher) Dispatch(ctx context.Context, g Group, opts ...DispatchOption) (*AsyncResult, error) {
	if len(g) == 0 {
		return EmptyAsyncResult(), nil
	}

	options := &dispatchOptions{
		queue:      d.defaultQueue,
		priority:   d.defaultPriority,
		maxRetries: d.maxRetries,
	}
	for _, opt := range opts {
		opt(options)
	}
	if !options.priority.Valid() {
		return nil, ErrInvalidPriority
	}

	groupID := uuid.New()
	now := time.Now()
	scheduledAt := now
	if options.delay > 0 {
		scheduledAt = scheduledAt.Add(options.delay)
	}

	tasks := make([]*Task, 0, len(g))
	for _, sig := range g {
		args, err := sig.MarshalArgs()
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", sig.TaskName, err)
		}
		tasks = append(tasks, &Task{
			ID:          uuid.New(),
			GroupID:     groupID,
			Queue:       options.queue,
			TaskName:    sig.TaskName,
			Args:        args,
			Status:      TaskStatusPending,
			Priority:    options.priority,
			RetryCount:  0,
			MaxRetries:  options.maxRetries,
			ScheduledAt: scheduledAt,
			CreatedAt:   now,
		})
	}

	if err := d.repo.CreateTasks(ctx, tasks); err != nil {
		return nil, fmt.Errorf("failed to create %d tasks in queue %q: %w", len(tasks), options.queue, err)
	}

	return newAsyncResult(groupID, d.repo, d.pollInterval), nil
}

// Apply executes every signature of the group in the calling context and
// blocks until all of them finish. Signatures run concurrently; the inclusion
// set is fixed by the group itself. All failures are collected and returned
// joined into a single error, alongside the per-signature values.
func (d *Dispatcher) Apply(ctx context.Context, g Group) (*SyncResult, error) {
	if len(g) == 0 {
		return EmptySyncResult(), nil
	}

	futures := make([]*async.Future[any], len(g))
	for i, sig := range g {
		futures[i] = async.Async(ctx, sig, d.applyOne)
	}

	values, err := async.CollectAll(futures...)
	return &SyncResult{values: values, names: g.Names()}, err
}

func (d *Dispatcher) applyOne(ctx context.Context, sig Signature) (any, error) {
	args, err := sig.MarshalArgs()
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", sig.TaskName, err)
	}
	value, err := d.jobs.invoke(ctx, sig.TaskName, args)
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", sig.TaskName, err)
	}
	return value, nil
}
