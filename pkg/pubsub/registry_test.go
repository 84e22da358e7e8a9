package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/taskpub/pkg/queue"
)

func namedJob(name string) queue.Job {
	return queue.NewJob(name, func(context.Context, json.RawMessage) (any, error) {
		return nil, nil
	})
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	t.Run("add and snapshot keep insertion order", func(t *testing.T) {
		t.Parallel()

		r := newRegistry()
		jobs := []queue.Job{namedJob("first"), namedJob("second"), namedJob("third")}
		for i, j := range jobs {
			require.True(t, r.add(MustCompile("topic.*"), j), "add %d", i)
		}

		snap := r.snapshot()
		require.Len(t, snap, 3)
		for i, j := range jobs {
			assert.Equal(t, j.Name(), snap[i].Job.Name())
		}
	})

	t.Run("identity is pattern text plus job name", func(t *testing.T) {
		t.Parallel()

		r := newRegistry()
		job := namedJob("handler")

		// Two independent compilations of the same text are one entry.
		require.True(t, r.add(MustCompile("a.*"), job))
		assert.False(t, r.add(MustCompile("a.*"), job))
		assert.Equal(t, 1, r.len())

		// Different pattern or different job name is a new entry.
		assert.True(t, r.add(MustCompile("a.#"), job))
		assert.True(t, r.add(MustCompile("a.*"), namedJob("other")))
		assert.Equal(t, 3, r.len())
	})

	t.Run("remove", func(t *testing.T) {
		t.Parallel()

		r := newRegistry()
		keep := namedJob("keep")
		drop := namedJob("drop")
		require.True(t, r.add(MustCompile("x.*"), keep))
		require.True(t, r.add(MustCompile("x.*"), drop))

		assert.True(t, r.remove("x.*", "drop"))
		assert.False(t, r.remove("x.*", "drop"))
		assert.False(t, r.remove("never.added", "keep"))

		snap := r.snapshot()
		require.Len(t, snap, 1)
		assert.Equal(t, "keep", snap[0].Job.Name())
	})

	t.Run("snapshot is a copy", func(t *testing.T) {
		t.Parallel()

		r := newRegistry()
		require.True(t, r.add(MustCompile("x.*"), namedJob("a")))

		snap := r.snapshot()
		require.True(t, r.add(MustCompile("y.*"), namedJob("b")))
		assert.Len(t, snap, 1)
		assert.Len(t, r.snapshot(), 2)
	})
}

func TestDispatchCache(t *testing.T) {
	t.Parallel()

	c := newDispatchCache()

	_, ok := c.get("orders.eu")
	assert.False(t, ok)

	matched := []queue.Job{namedJob("a"), namedJob("b")}
	c.put("orders.eu", matched)
	c.put("orders.us", nil)

	jobs, ok := c.get("orders.eu")
	require.True(t, ok)
	assert.Len(t, jobs, 2)

	// A cached empty resolution is still a hit.
	jobs, ok = c.get("orders.us")
	require.True(t, ok)
	assert.Empty(t, jobs)

	c.invalidateAll()
	_, ok = c.get("orders.eu")
	assert.False(t, ok)
	_, ok = c.get("orders.us")
	assert.False(t, ok)
}
