// Package config loads typed configuration structs from environment
// variables, with optional .env file support for local development.
//
// Field mapping is declared with `env` struct tags as implemented by
// github.com/caarlos0/env:
//
//	type WorkerConfig struct {
//	    Queue        string        `env:"TASKPUB_QUEUE" envDefault:"default"`
//	    PullInterval time.Duration `env:"TASKPUB_PULL_INTERVAL" envDefault:"1s"`
//	}
//
//	var cfg WorkerConfig
//	if err := config.Load(&cfg); err != nil {
//	    // handle error
//	}
//
// Each configuration type is parsed exactly once per process; later calls
// return the cached copy. Use MustLoad for configuration the application
// cannot run without.
package config
