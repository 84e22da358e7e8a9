package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/taskpub/pkg/config"
)

type loaderTestConfig struct {
	Name  string `env:"LOADER_TEST_NAME" envDefault:"fallback"`
	Count int    `env:"LOADER_TEST_COUNT" envDefault:"3"`
}

type requiredTestConfig struct {
	Secret string `env:"LOADER_TEST_SECRET,required"`
}

type cachedTestConfig struct {
	Value string `env:"LOADER_TEST_CACHED" envDefault:"initial"`
}

func TestLoad(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		var cfg loaderTestConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "fallback", cfg.Name)
		assert.Equal(t, 3, cfg.Count)
	})

	t.Run("nil pointer", func(t *testing.T) {
		err := config.Load[loaderTestConfig](nil)
		assert.ErrorIs(t, err, config.ErrNilPointer)
	})

	t.Run("missing required variable", func(t *testing.T) {
		var cfg requiredTestConfig
		err := config.Load(&cfg)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("caches per type", func(t *testing.T) {
		var first cachedTestConfig
		require.NoError(t, config.Load(&first))
		assert.Equal(t, "initial", first.Value)

		// Environment changes after the first load are not observed.
		t.Setenv("LOADER_TEST_CACHED", "changed")

		var second cachedTestConfig
		require.NoError(t, config.Load(&second))
		assert.Equal(t, "initial", second.Value)
	})
}
