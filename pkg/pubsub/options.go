package pubsub

import "log/slog"

// Option is a functional option for configuring a Broker
type Option func(*brokerOptions)

type brokerOptions struct {
	logger   *slog.Logger
	disabled bool
}

// WithLogger sets the logger for the broker
func WithLogger(logger *slog.Logger) Option {
	return func(o *brokerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDisabled starts the broker with the publish gate closed; no topic is
// dispatched until SetEnabled(true) is called
func WithDisabled() Option {
	return func(o *brokerOptions) {
		o.disabled = true
	}
}
