package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskResult is the observed outcome of one task within a dispatch group.
type TaskResult struct {
	TaskID   uuid.UUID       `json:"task_id"`
	TaskName string          `json:"task_name"`
	Status   TaskStatus      `json:"status"`
	Value    json.RawMessage `json:"value,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Failed reports whether the task ended in failure.
func (r TaskResult) Failed() bool {
	return r.Status == TaskStatusFailed
}

// TaskResults is the outcome of a whole dispatch group, in creation order.
type TaskResults []TaskResult

// Err joins the errors of all failed tasks, or returns nil if none failed.
func (rs TaskResults) Err() error {
	var errs []error
	for _, r := range rs {
		if r.Failed() {
			errs = append(errs, fmt.Errorf("task %q: %s", r.TaskName, r.Error))
		}
	}
	return errors.Join(errs...)
}

// AsyncResult is the deferred handle of an asynchronous group dispatch. It
// identifies the group, answers state queries, blocks for the final outcome
// and cancels still-pending tasks. Per-task failures are recorded in storage
// by the workers and surface only through this handle, never at dispatch time.
type AsyncResult struct {
	groupID      uuid.UUID
	repo         DispatcherRepository
	pollInterval time.Duration
	empty        bool
}

func newAsyncResult(groupID uuid.UUID, repo DispatcherRepository, pollInterval time.Duration) *AsyncResult {
	return &AsyncResult{groupID: groupID, repo: repo, pollInterval: pollInterval}
}

// EmptyAsyncResult returns an already-completed handle representing a
// dispatch that matched nothing. It never touches storage.
func EmptyAsyncResult() *AsyncResult {
	return &AsyncResult{empty: true}
}

// ID returns the dispatch group identifier. Empty results carry the nil UUID.
func (r *AsyncResult) ID() uuid.UUID {
	return r.groupID
}

// Empty reports whether the handle represents an empty dispatch.
func (r *AsyncResult) Empty() bool {
	return r.empty
}

// Poll returns a snapshot of the group outcome and whether every task has
// reached a terminal state.
func (r *AsyncResult) Poll(ctx context.Context) (TaskResults, bool, error) {
	if r.empty {
		return nil, true, nil
	}

	tasks, err := r.repo.GetGroupTasks(ctx, r.groupID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load tasks of group %s: %w", r.groupID, err)
	}

	results := make(TaskResults, 0, len(tasks))
	ready := true
	for _, t := range tasks {
		if !t.Status.Terminal() {
			ready = false
		}
		res := TaskResult{
			TaskID:   t.ID,
			TaskName: t.TaskName,
			Status:   t.Status,
			Value:    t.Result,
		}
		if t.Error != nil {
			res.Error = *t.Error
		}
		results = append(results, res)
	}
	return results, ready, nil
}

// State reduces the group to a single aggregate status: failed dominates,
// then cancelled, then processing, then pending; a group is completed only
// when every task completed. Empty dispatches are completed.
func (r *AsyncResult) State(ctx context.Context) (TaskStatus, error) {
	results, _, err := r.Poll(ctx)
	if err != nil {
		return "", err
	}
	return aggregateStatus(results), nil
}

// Ready reports whether every task of the group reached a terminal state.
func (r *AsyncResult) Ready(ctx context.Context) (bool, error) {
	_, ready, err := r.Poll(ctx)
	return ready, err
}

// Wait blocks until every task of the group reaches a terminal state or ctx
// is done. Task failures do not abort the wait; they are reported in the
// returned results and via TaskResults.Err.
func (r *AsyncResult) Wait(ctx context.Context) (TaskResults, error) {
	if r.empty {
		return nil, nil
	}

	results, ready, err := r.Poll(ctx)
	if err != nil {
		return nil, err
	}
	if ready {
		return results, nil
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			results, ready, err := r.Poll(ctx)
			if err != nil {
				return nil, err
			}
			if ready {
				return results, nil
			}
		}
	}
}

// Cancel marks every still-pending task of the group as cancelled. Tasks
// already claimed by a worker run to completion; cancellation is best-effort.
func (r *AsyncResult) Cancel(ctx context.Context) error {
	if r.empty {
		return nil
	}
	if _, err := r.repo.CancelGroup(ctx, r.groupID); err != nil {
		return fmt.Errorf("failed to cancel group %s: %w", r.groupID, err)
	}
	return nil
}

func aggregateStatus(results TaskResults) TaskStatus {
	if len(results) == 0 {
		return TaskStatusCompleted
	}

	var processing, pending, cancelled bool
	for _, res := range results {
		switch res.Status {
		case TaskStatusFailed:
			return TaskStatusFailed
		case TaskStatusCancelled:
			cancelled = true
		case TaskStatusProcessing:
			processing = true
		case TaskStatusPending:
			pending = true
		}
	}
	switch {
	case processing:
		return TaskStatusProcessing
	case pending:
		return TaskStatusPending
	case cancelled:
		return TaskStatusCancelled
	}
	return TaskStatusCompleted
}

// SyncResult is the aggregate outcome of applying a group synchronously.
// Values are the raw job return values in group order; failed signatures
// leave a nil value at their position.
type SyncResult struct {
	values []any
	names  []string
}

// EmptySyncResult represents a synchronous dispatch that matched nothing.
func EmptySyncResult() *SyncResult {
	return &SyncResult{}
}

// Len returns the number of applied signatures.
func (r *SyncResult) Len() int {
	return len(r.values)
}

// Empty reports whether nothing was applied.
func (r *SyncResult) Empty() bool {
	return len(r.values) == 0
}

// Values returns the job return values in group order.
func (r *SyncResult) Values() []any {
	return r.values
}

// Names returns the task names in group order.
func (r *SyncResult) Names() []string {
	return r.names
}
