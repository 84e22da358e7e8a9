package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/taskpub/pkg/queue"
)

func newDispatcher(t *testing.T, opts ...queue.DispatcherOption) (*queue.Dispatcher, *queue.MemoryStorage) {
	t.Helper()

	storage := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = storage.Close() })

	d, err := queue.NewDispatcher(storage, queue.NewJobRegistry(), opts...)
	require.NoError(t, err)
	return d, storage
}

func TestNewDispatcher(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = storage.Close() })

	_, err := queue.NewDispatcher(nil, queue.NewJobRegistry())
	assert.ErrorIs(t, err, queue.ErrRepositoryNil)

	_, err = queue.NewDispatcher(storage, nil)
	assert.ErrorIs(t, err, queue.ErrRegistryNil)
}

func TestDispatcher_Dispatch(t *testing.T) {
	t.Parallel()

	t.Run("empty group never touches storage", func(t *testing.T) {
		t.Parallel()

		d, _ := newDispatcher(t)
		handle, err := d.Dispatch(context.Background(), queue.NewGroup())
		require.NoError(t, err)
		assert.True(t, handle.Empty())

		state, err := handle.State(context.Background())
		require.NoError(t, err)
		assert.Equal(t, queue.TaskStatusCompleted, state)
	})

	t.Run("persists one task per signature", func(t *testing.T) {
		t.Parallel()

		d, storage := newDispatcher(t)
		g := queue.NewGroup(
			queue.NewSignature("orders.notify", 42),
			queue.NewSignature("orders.audit"),
		)

		handle, err := d.Dispatch(context.Background(), g)
		require.NoError(t, err)
		require.False(t, handle.Empty())

		tasks, err := storage.GetGroupTasks(context.Background(), handle.ID())
		require.NoError(t, err)
		require.Len(t, tasks, 2)

		assert.Equal(t, "orders.notify", tasks[0].TaskName)
		assert.JSONEq(t, `[42]`, string(tasks[0].Args))
		assert.Equal(t, "orders.audit", tasks[1].TaskName)
		assert.JSONEq(t, `[]`, string(tasks[1].Args))

		for _, task := range tasks {
			assert.Equal(t, handle.ID(), task.GroupID)
			assert.Equal(t, queue.DefaultQueueName, task.Queue)
			assert.Equal(t, queue.PriorityDefault, task.Priority)
			assert.Equal(t, int8(3), task.MaxRetries)
			assert.Equal(t, queue.TaskStatusPending, task.Status)
		}
	})

	t.Run("dispatch options override defaults", func(t *testing.T) {
		t.Parallel()

		d, storage := newDispatcher(t, queue.WithDefaultQueue("low"))
		g := queue.NewGroup(queue.NewSignature("orders.notify"))

		before := time.Now()
		handle, err := d.Dispatch(context.Background(), g,
			queue.WithQueue("urgent"),
			queue.WithPriority(queue.PriorityHigh),
			queue.WithMaxRetries(1),
			queue.WithDelay(time.Minute))
		require.NoError(t, err)

		tasks, err := storage.GetGroupTasks(context.Background(), handle.ID())
		require.NoError(t, err)
		require.Len(t, tasks, 1)

		task := tasks[0]
		assert.Equal(t, "urgent", task.Queue)
		assert.Equal(t, queue.PriorityHigh, task.Priority)
		assert.Equal(t, int8(1), task.MaxRetries)
		assert.True(t, task.ScheduledAt.After(before.Add(50*time.Second)))
	})

	t.Run("invalid priority", func(t *testing.T) {
		t.Parallel()

		d, _ := newDispatcher(t)
		_, err := d.Dispatch(context.Background(),
			queue.NewGroup(queue.NewSignature("orders.notify")),
			queue.WithPriority(queue.Priority(-5)))
		assert.ErrorIs(t, err, queue.ErrInvalidPriority)
	})

	t.Run("unencodable arguments fail before storage", func(t *testing.T) {
		t.Parallel()

		d, storage := newDispatcher(t)
		handle, err := d.Dispatch(context.Background(),
			queue.NewGroup(queue.NewSignature("orders.notify", make(chan int))))
		assert.ErrorIs(t, err, queue.ErrArgsMarshal)
		assert.Nil(t, handle)

		_, err = storage.GetGroupTasks(context.Background(), uuid.Nil)
		assert.ErrorIs(t, err, queue.ErrGroupNotFound)
	})
}

func TestDispatcher_Apply(t *testing.T) {
	t.Parallel()

	t.Run("empty group", func(t *testing.T) {
		t.Parallel()

		d, _ := newDispatcher(t)
		res, err := d.Apply(context.Background(), queue.NewGroup())
		require.NoError(t, err)
		assert.True(t, res.Empty())
	})

	t.Run("values keep group order", func(t *testing.T) {
		t.Parallel()

		d, _ := newDispatcher(t)
		_, err := d.Register(queue.NewTypedJob("math.double", func(_ context.Context, n int) (any, error) {
			return n * 2, nil
		}))
		require.NoError(t, err)
		_, err = d.Register(queue.NewJob("static.greet", func(context.Context, json.RawMessage) (any, error) {
			return "hello", nil
		}))
		require.NoError(t, err)

		res, err := d.Apply(context.Background(), queue.NewGroup(
			queue.NewSignature("math.double", 21),
			queue.NewSignature("static.greet"),
			queue.NewSignature("math.double", 5),
		))
		require.NoError(t, err)
		assert.Equal(t, []any{42, "hello", 10}, res.Values())
		assert.Equal(t, []string{"math.double", "static.greet", "math.double"}, res.Names())
	})

	t.Run("missing job", func(t *testing.T) {
		t.Parallel()

		d, _ := newDispatcher(t)
		_, err := d.Apply(context.Background(),
			queue.NewGroup(queue.NewSignature("nobody.home")))
		assert.ErrorIs(t, err, queue.ErrJobNotFound)
	})

	t.Run("all failures are collected", func(t *testing.T) {
		t.Parallel()

		d, _ := newDispatcher(t)
		errFirst := errors.New("first broke")
		errSecond := errors.New("second broke")

		_, err := d.Register(queue.NewJob("fail.first", func(context.Context, json.RawMessage) (any, error) {
			return nil, errFirst
		}))
		require.NoError(t, err)
		_, err = d.Register(queue.NewJob("fail.second", func(context.Context, json.RawMessage) (any, error) {
			return nil, errSecond
		}))
		require.NoError(t, err)
		_, err = d.Register(queue.NewJob("ok.third", func(context.Context, json.RawMessage) (any, error) {
			return "survived", nil
		}))
		require.NoError(t, err)

		res, err := d.Apply(context.Background(), queue.NewGroup(
			queue.NewSignature("fail.first"),
			queue.NewSignature("fail.second"),
			queue.NewSignature("ok.third"),
		))
		require.Error(t, err)
		assert.ErrorIs(t, err, errFirst)
		assert.ErrorIs(t, err, errSecond)

		// The successful signature still delivered its value.
		require.Equal(t, 3, res.Len())
		assert.Nil(t, res.Values()[0])
		assert.Nil(t, res.Values()[1])
		assert.Equal(t, "survived", res.Values()[2])
	})
}
