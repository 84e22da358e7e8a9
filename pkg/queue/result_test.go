package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/taskpub/pkg/queue"
)

func TestEmptyAsyncResult(t *testing.T) {
	t.Parallel()

	handle := queue.EmptyAsyncResult()
	assert.True(t, handle.Empty())
	assert.Equal(t, uuid.Nil, handle.ID())

	results, ready, err := handle.Poll(context.Background())
	require.NoError(t, err)
	assert.True(t, ready)
	assert.Empty(t, results)

	state, err := handle.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, queue.TaskStatusCompleted, state)

	results, err = handle.Wait(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)

	assert.NoError(t, handle.Cancel(context.Background()))
}

func TestTaskResults_Err(t *testing.T) {
	t.Parallel()

	ok := queue.TaskResult{TaskName: "a", Status: queue.TaskStatusCompleted}
	bad := queue.TaskResult{TaskName: "b", Status: queue.TaskStatusFailed, Error: "boom"}

	assert.NoError(t, queue.TaskResults{ok}.Err())
	assert.NoError(t, queue.TaskResults{}.Err())

	err := queue.TaskResults{ok, bad}.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `task "b"`)
	assert.Contains(t, err.Error(), "boom")
}

func TestAsyncResult_Lifecycle(t *testing.T) {
	t.Parallel()

	t.Run("pending to processing to completed", func(t *testing.T) {
		t.Parallel()

		d, storage := newDispatcher(t)
		handle, err := d.Dispatch(context.Background(),
			queue.NewGroup(queue.NewSignature("orders.notify", 42)))
		require.NoError(t, err)

		state, err := handle.State(context.Background())
		require.NoError(t, err)
		assert.Equal(t, queue.TaskStatusPending, state)

		ready, err := handle.Ready(context.Background())
		require.NoError(t, err)
		assert.False(t, ready)

		task, err := storage.ClaimTask(context.Background(), uuid.New(),
			[]string{queue.DefaultQueueName}, time.Minute)
		require.NoError(t, err)

		state, err = handle.State(context.Background())
		require.NoError(t, err)
		assert.Equal(t, queue.TaskStatusProcessing, state)

		require.NoError(t, storage.CompleteTask(context.Background(), task.ID, []byte(`"sent"`)))

		results, err := handle.Wait(context.Background())
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, queue.TaskStatusCompleted, results[0].Status)
		assert.JSONEq(t, `"sent"`, string(results[0].Value))
		assert.NoError(t, results.Err())
	})

	t.Run("one failure dominates the aggregate", func(t *testing.T) {
		t.Parallel()

		d, storage := newDispatcher(t)
		handle, err := d.Dispatch(context.Background(),
			queue.NewGroup(
				queue.NewSignature("orders.notify"),
				queue.NewSignature("orders.audit"),
			),
			queue.WithMaxRetries(0))
		require.NoError(t, err)

		task, err := storage.ClaimTask(context.Background(), uuid.New(),
			[]string{queue.DefaultQueueName}, time.Minute)
		require.NoError(t, err)
		require.NoError(t, storage.FailTask(context.Background(), task.ID, "smtp down"))

		// The second task is still pending, yet failure wins the aggregate.
		state, err := handle.State(context.Background())
		require.NoError(t, err)
		assert.Equal(t, queue.TaskStatusFailed, state)

		results, _, err := handle.Poll(context.Background())
		require.NoError(t, err)
		assert.Error(t, results.Err())
	})

	t.Run("cancel spares claimed tasks", func(t *testing.T) {
		t.Parallel()

		d, storage := newDispatcher(t)
		handle, err := d.Dispatch(context.Background(),
			queue.NewGroup(
				queue.NewSignature("orders.notify"),
				queue.NewSignature("orders.audit"),
			))
		require.NoError(t, err)

		claimed, err := storage.ClaimTask(context.Background(), uuid.New(),
			[]string{queue.DefaultQueueName}, time.Minute)
		require.NoError(t, err)

		require.NoError(t, handle.Cancel(context.Background()))
		require.NoError(t, storage.CompleteTask(context.Background(), claimed.ID, nil))

		results, ready, err := handle.Poll(context.Background())
		require.NoError(t, err)
		assert.True(t, ready)

		statuses := map[queue.TaskStatus]int{}
		for _, res := range results {
			statuses[res.Status]++
		}
		assert.Equal(t, 1, statuses[queue.TaskStatusCompleted])
		assert.Equal(t, 1, statuses[queue.TaskStatusCancelled])

		state, err := handle.State(context.Background())
		require.NoError(t, err)
		assert.Equal(t, queue.TaskStatusCancelled, state)
	})

	t.Run("wait respects the context deadline", func(t *testing.T) {
		t.Parallel()

		d, _ := newDispatcher(t, queue.WithResultPollInterval(10*time.Millisecond))
		handle, err := d.Dispatch(context.Background(),
			queue.NewGroup(queue.NewSignature("orders.notify")))
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err = handle.Wait(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
