package pubsub_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/taskpub/pkg/pubsub"
)

func TestCompile(t *testing.T) {
	t.Parallel()

	t.Run("empty pattern", func(t *testing.T) {
		t.Parallel()

		p, err := pubsub.Compile("")
		assert.Nil(t, p)
		assert.ErrorIs(t, err, pubsub.ErrEmptyPattern)

		var patternErr *pubsub.PatternError
		require.ErrorAs(t, err, &patternErr)
		assert.Equal(t, "", patternErr.Pattern)
	})

	t.Run("keeps original text", func(t *testing.T) {
		t.Parallel()

		p, err := pubsub.Compile("orders.*.created")
		require.NoError(t, err)
		assert.Equal(t, "orders.*.created", p.String())
	})
}

func TestPattern_Match(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		topic   string
		want    bool
	}{
		// Exact literals.
		{"orders.eu.created", "orders.eu.created", true},
		{"orders.eu.created", "orders.eu.updated", false},
		{"orders.eu.created", "orders.eu", false},

		// Full anchoring: no prefix or suffix matches.
		{"orders", "orders.eu", false},
		{"orders.eu", "orders", false},
		{"eu.created", "orders.eu.created", false},

		// `*` is exactly one non-empty segment.
		{"a.*.c", "a.b.c", true},
		{"a.*.c", "a.bbb.c", true},
		{"a.*.c", "a.b.b.c", false},
		{"a.*.c", "a..c", false},
		{"a.*.c", "a.c", false},
		{"*", "orders", true},
		{"*", "orders.eu", false},
		{"*", "", false},

		// `#` is one or more characters, spanning separators.
		{"a.#", "a.b.c.d", true},
		{"a.#", "a.x", true},
		{"a.#", "a.", false},
		{"a.#", "a", false},
		{"#", "anything.at.all", true},
		{"#", "x", true},
		{"#", "", false},
		{"logs.#", "logs.app.error.timeout", true},
		{"logs.#", "logs", false},

		// Character-level substitution: wildcards mid-literal.
		{"abc*def", "abcXdef", true},
		{"abc*def", "abcXYZdef", true},
		{"abc*def", "abcdef", false},
		{"abc*def", "abcX.Ydef", false},
		{"orders.v*", "orders.v2", true},
		{"orders.v*", "orders.v", false},
		{"a#c", "abc", true},
		{"a#c", "ab.bc", true},
		{"a#c", "ac", false},

		// Separator is a literal; empty segments match literally.
		{"a..c", "a..c", true},
		{"a..c", "a.b.c", false},

		// Regexp metacharacters carry no special meaning.
		{"metrics.cpu+mem", "metrics.cpu+mem", true},
		{"metrics.cpu+mem", "metrics.cpuumem", false},
		{"alerts.(critical)", "alerts.(critical)", true},

		// Combined wildcards.
		{"*.#", "a.b", true},
		{"*.#", "a.b.c", true},
		{"*.#", "a", false},
		{"a.*.#", "a.b.c.d", true},
		{"a.*.#", "a.b", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.pattern+" vs "+tt.topic, func(t *testing.T) {
			t.Parallel()

			p, err := pubsub.Compile(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Match(tt.topic),
				"pattern %q against topic %q", tt.pattern, tt.topic)
		})
	}
}

func TestMustCompile(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		p := pubsub.MustCompile("a.*")
		assert.True(t, p.Match("a.b"))
	})
	assert.Panics(t, func() {
		pubsub.MustCompile("")
	})
}
