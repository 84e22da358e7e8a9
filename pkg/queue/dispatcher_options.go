package queue

import "time"

// DispatcherOption is a functional option for configuring a Dispatcher
type DispatcherOption func(*dispatcherOptions)

type dispatcherOptions struct {
	defaultQueue    string
	defaultPriority Priority
	maxRetries      int8
	pollInterval    time.Duration
}

// WithDefaultQueue sets the queue tasks are dispatched to by default
func WithDefaultQueue(queue string) DispatcherOption {
	return func(o *dispatcherOptions) {
		if queue != "" {
			o.defaultQueue = queue
		}
	}
}

// WithDefaultPriority sets the default task priority
func WithDefaultPriority(priority Priority) DispatcherOption {
	return func(o *dispatcherOptions) {
		if priority.Valid() {
			o.defaultPriority = priority
		}
	}
}

// WithDefaultMaxRetries sets the default retry budget (0-10)
// Capped at 10 to prevent infinite retry loops on persistent failures
func WithDefaultMaxRetries(n int8) DispatcherOption {
	return func(o *dispatcherOptions) {
		if n >= 0 && n <= 10 {
			o.maxRetries = n
		}
	}
}

// WithResultPollInterval sets how often AsyncResult handles poll storage
func WithResultPollInterval(d time.Duration) DispatcherOption {
	return func(o *dispatcherOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// DispatchOption is a functional option for a single Dispatch call
type DispatchOption func(*dispatchOptions)

type dispatchOptions struct {
	queue      string
	priority   Priority
	maxRetries int8
	delay      time.Duration
}

// WithQueue routes the dispatched group to a specific queue
func WithQueue(queue string) DispatchOption {
	return func(o *dispatchOptions) {
		if queue != "" {
			o.queue = queue
		}
	}
}

// WithPriority sets the priority for all tasks of the group
func WithPriority(priority Priority) DispatchOption {
	return func(o *dispatchOptions) {
		o.priority = priority
	}
}

// WithMaxRetries sets the retry budget for all tasks of the group (0-10)
func WithMaxRetries(n int8) DispatchOption {
	return func(o *dispatchOptions) {
		if n >= 0 && n <= 10 {
			o.maxRetries = n
		}
	}
}

// WithDelay postpones execution of the whole group
func WithDelay(d time.Duration) DispatchOption {
	return func(o *dispatchOptions) {
		if d > 0 {
			o.delay = d
		}
	}
}
