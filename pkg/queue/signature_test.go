package queue_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/taskpub/pkg/queue"
)

func TestSignature_MarshalArgs(t *testing.T) {
	t.Parallel()

	t.Run("no arguments encode as an empty array", func(t *testing.T) {
		t.Parallel()

		raw, err := queue.NewSignature("orders.notify").MarshalArgs()
		require.NoError(t, err)
		assert.JSONEq(t, `[]`, string(raw))
	})

	t.Run("positional arguments keep their order", func(t *testing.T) {
		t.Parallel()

		sig := queue.NewSignature("orders.notify", 42, "eu", true)
		raw, err := sig.MarshalArgs()
		require.NoError(t, err)
		assert.JSONEq(t, `[42,"eu",true]`, string(raw))
	})

	t.Run("unencodable argument", func(t *testing.T) {
		t.Parallel()

		sig := queue.NewSignature("orders.notify", make(chan int))
		_, err := sig.MarshalArgs()
		assert.ErrorIs(t, err, queue.ErrArgsMarshal)
	})
}

func TestGroup_Names(t *testing.T) {
	t.Parallel()

	g := queue.NewGroup(
		queue.NewSignature("first", 1),
		queue.NewSignature("second"),
		queue.NewSignature("third", "x"),
	)
	assert.Equal(t, []string{"first", "second", "third"}, g.Names())

	assert.Empty(t, queue.NewGroup().Names())
}
