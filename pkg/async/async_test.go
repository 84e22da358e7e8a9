package async_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/taskpub/pkg/async"
)

func TestAsync_Await(t *testing.T) {
	t.Parallel()

	t.Run("returns computed value", func(t *testing.T) {
		t.Parallel()

		f := async.Async(context.Background(), 21, func(_ context.Context, v int) (int, error) {
			return v * 2, nil
		})

		got, err := f.Await()
		require.NoError(t, err)
		assert.Equal(t, 42, got)
	})

	t.Run("propagates function error", func(t *testing.T) {
		t.Parallel()

		wantErr := errors.New("boom")
		f := async.Async(context.Background(), struct{}{}, func(context.Context, struct{}) (int, error) {
			return 0, wantErr
		})

		_, err := f.Await()
		assert.ErrorIs(t, err, wantErr)
	})

	t.Run("cancelled context skips execution", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		called := false
		f := async.Async(ctx, struct{}{}, func(context.Context, struct{}) (int, error) {
			called = true
			return 1, nil
		})

		_, err := f.Await()
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
	})
}

func TestAsync_AwaitWithTimeout(t *testing.T) {
	t.Parallel()

	t.Run("completes before timeout", func(t *testing.T) {
		t.Parallel()

		f := async.Async(context.Background(), "x", func(_ context.Context, s string) (string, error) {
			return s + "y", nil
		})

		got, err := f.AwaitWithTimeout(time.Second)
		require.NoError(t, err)
		assert.Equal(t, "xy", got)
	})

	t.Run("times out on slow computation", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		defer close(release)

		f := async.Async(context.Background(), struct{}{}, func(context.Context, struct{}) (int, error) {
			<-release
			return 0, nil
		})

		_, err := f.AwaitWithTimeout(10 * time.Millisecond)
		assert.ErrorIs(t, err, async.ErrTimeout)
	})
}

func TestAsync_IsComplete(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	f := async.Async(context.Background(), struct{}{}, func(context.Context, struct{}) (int, error) {
		<-release
		return 0, nil
	})

	assert.False(t, f.IsComplete())
	close(release)

	_, err := f.Await()
	require.NoError(t, err)
	assert.True(t, f.IsComplete())
}

func TestWaitAll(t *testing.T) {
	t.Parallel()

	t.Run("collects all results in order", func(t *testing.T) {
		t.Parallel()

		double := func(_ context.Context, v int) (int, error) { return v * 2, nil }
		f1 := async.Async(context.Background(), 1, double)
		f2 := async.Async(context.Background(), 2, double)
		f3 := async.Async(context.Background(), 3, double)

		results, err := async.WaitAll(f1, f2, f3)
		require.NoError(t, err)
		assert.Equal(t, []int{2, 4, 6}, results)
	})

	t.Run("stops at first error", func(t *testing.T) {
		t.Parallel()

		wantErr := errors.New("fail")
		f1 := async.Async(context.Background(), 1, func(_ context.Context, v int) (int, error) { return v, nil })
		f2 := async.Async(context.Background(), 2, func(context.Context, int) (int, error) { return 0, wantErr })

		_, err := async.WaitAll(f1, f2)
		assert.ErrorIs(t, err, wantErr)
	})
}

func TestCollectAll(t *testing.T) {
	t.Parallel()

	errA := errors.New("a failed")
	errB := errors.New("b failed")

	f1 := async.Async(context.Background(), 1, func(context.Context, int) (int, error) { return 0, errA })
	f2 := async.Async(context.Background(), 2, func(_ context.Context, v int) (int, error) { return v, nil })
	f3 := async.Async(context.Background(), 3, func(context.Context, int) (int, error) { return 0, errB })

	results, err := async.CollectAll(f1, f2, f3)
	require.Len(t, results, 3)
	assert.Equal(t, 2, results[1])
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}
