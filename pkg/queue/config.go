package queue

import (
	"time"

	"github.com/dmitrymomot/taskpub/pkg/config"
)

// Config carries queue settings sourced from the environment.
type Config struct {
	Queue              string        `env:"TASKPUB_QUEUE" envDefault:"default"`
	Priority           Priority      `env:"TASKPUB_PRIORITY" envDefault:"50"`
	MaxRetries         int8          `env:"TASKPUB_MAX_RETRIES" envDefault:"3"`
	ResultPollInterval time.Duration `env:"TASKPUB_RESULT_POLL_INTERVAL" envDefault:"200ms"`

	PullInterval       time.Duration `env:"TASKPUB_PULL_INTERVAL" envDefault:"1s"`
	LockTimeout        time.Duration `env:"TASKPUB_LOCK_TIMEOUT" envDefault:"5m"`
	MaxConcurrentTasks int           `env:"TASKPUB_MAX_CONCURRENT_TASKS" envDefault:"1"`
}

// LoadConfig loads the queue configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	err := config.Load(&cfg)
	return cfg, err
}

// DispatcherOptions translates the config into dispatcher options.
func (c Config) DispatcherOptions() []DispatcherOption {
	return []DispatcherOption{
		WithDefaultQueue(c.Queue),
		WithDefaultPriority(c.Priority),
		WithDefaultMaxRetries(c.MaxRetries),
		WithResultPollInterval(c.ResultPollInterval),
	}
}

// WorkerOptions translates the config into worker options.
func (c Config) WorkerOptions() []WorkerOption {
	return []WorkerOption{
		WithQueues(c.Queue),
		WithPullInterval(c.PullInterval),
		WithLockTimeout(c.LockTimeout),
		WithMaxConcurrentTasks(c.MaxConcurrentTasks),
	}
}
