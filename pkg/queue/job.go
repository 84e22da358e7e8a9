package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

type (
	// Job is a named, remotely invocable unit of work. The name identifies
	// the job across processes: a dispatcher encodes it into tasks and a
	// worker uses it to find the implementation to invoke. Two Job values
	// with the same name are the same unit as far as the queue is concerned.
	Job interface {
		Name() string
		Invoke(ctx context.Context, args json.RawMessage) (any, error)
	}

	// JobFunc is a plain callable operating on the raw JSON argument array.
	JobFunc func(ctx context.Context, args json.RawMessage) (any, error)
)

// NewJob wraps fn as a Job under an explicit name.
func NewJob(name string, fn JobFunc) Job {
	return &job{name: name, fn: fn}
}

// JobFromFunc wraps fn as a Job named after the function itself: the full
// package path plus the qualified function name, as reported by the runtime.
// The derivation is deterministic, so wrapping the same source function twice
// yields jobs with identical names.
func JobFromFunc(fn JobFunc) Job {
	return &job{name: funcName(fn), fn: fn}
}

// NewTypedJob wraps a typed handler as a Job. The first positional argument
// of the task payload is decoded into T; a payload with no arguments yields
// the zero value. An empty name is derived from fn like JobFromFunc does.
func NewTypedJob[T any](name string, fn func(ctx context.Context, arg T) (any, error)) Job {
	if name == "" {
		name = funcName(fn)
	}
	return &job{name: name, fn: func(ctx context.Context, args json.RawMessage) (any, error) {
		arg, err := FirstArg[T](args)
		if err != nil {
			return nil, err
		}
		return fn(ctx, arg)
	}}
}

type job struct {
	name string
	fn   JobFunc
}

func (j *job) Name() string { return j.name }

func (j *job) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	return j.fn(ctx, args)
}

// FirstArg decodes the first element of a JSON argument array into T.
// An empty or missing array yields the zero value.
func FirstArg[T any](args json.RawMessage) (T, error) {
	var zero T
	if len(args) == 0 {
		return zero, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(args, &raw); err != nil {
		return zero, errors.Join(ErrArgsUnmarshal, err)
	}
	if len(raw) == 0 {
		return zero, nil
	}

	var arg T
	if err := json.Unmarshal(raw[0], &arg); err != nil {
		return zero, errors.Join(ErrArgsUnmarshal, err)
	}
	return arg, nil
}

// funcName resolves the fully qualified name of fn via the runtime, e.g.
// "github.com/acme/billing.HandleInvoicePaid". Method values carry a "-fm"
// suffix which is stripped so repeated registrations stay stable.
func funcName(fn any) string {
	pc := reflect.ValueOf(fn).Pointer()
	name := runtime.FuncForPC(pc).Name()
	return strings.TrimSuffix(name, "-fm")
}

// JobRegistry maps task names to their Job implementations. It is shared
// between a Dispatcher (for synchronous application) and Workers (for
// asynchronous execution) and is safe for concurrent use.
type JobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

// NewJobRegistry creates an empty job registry.
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{jobs: make(map[string]Job)}
}

// Register adds job to the registry and returns the registered instance.
// Registering a name that already exists is a no-op that returns the existing
// instance, so repeated registration of the same unit keeps a stable identity.
func (r *JobRegistry) Register(j Job) (Job, error) {
	if j == nil {
		return nil, ErrJobNil
	}
	if j.Name() == "" {
		return nil, ErrJobNameEmpty
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.jobs[j.Name()]; ok {
		return existing, nil
	}
	r.jobs[j.Name()] = j
	return j, nil
}

// Lookup returns the job registered under name.
func (r *JobRegistry) Lookup(name string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[name]
	return j, ok
}

// Len returns the number of registered jobs.
func (r *JobRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.jobs)
}

// Names returns the registered task names in unspecified order.
func (r *JobRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	return names
}

// invoke runs the named job against the given argument payload.
func (r *JobRegistry) invoke(ctx context.Context, name string, args json.RawMessage) (any, error) {
	j, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return j.Invoke(ctx, args)
}
