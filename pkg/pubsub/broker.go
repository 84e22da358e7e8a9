package pubsub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dmitrymomot/taskpub/pkg/logger"
	"github.com/dmitrymomot/taskpub/pkg/queue"
)

// Backend is the task-execution side of the router: it registers named jobs,
// dispatches a signature group asynchronously, and applies one synchronously.
// *queue.Dispatcher satisfies it.
type Backend interface {
	Register(j queue.Job) (queue.Job, error)
	Dispatch(ctx context.Context, g queue.Group, opts ...queue.DispatchOption) (*queue.AsyncResult, error)
	Apply(ctx context.Context, g queue.Group) (*queue.SyncResult, error)
}

// Broker routes published topics to subscribed jobs. It owns the subscription
// registry, the per-topic dispatch cache and the enable gate, and hands the
// matched jobs to the backend as one combined group.
//
// Create one Broker at process start and inject it wherever code subscribes
// or publishes; independent Broker instances are fully isolated, which also
// keeps tests deterministic.
//
// A single lock guards registry and cache together, so a concurrent resolve
// can never see a mutation without its cache invalidation or vice versa.
// Warm-cache publishes only take the read side of the lock.
type Broker struct {
	backend Backend
	logger  *slog.Logger
	enabled atomic.Bool

	mu    sync.RWMutex
	subs  *registry
	cache *dispatchCache
}

// New creates a Broker on top of the given backend. The gate starts enabled
// unless WithDisabled is supplied.
func New(backend Backend, opts ...Option) (*Broker, error) {
	if backend == nil {
		return nil, ErrBackendNil
	}

	options := &brokerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}

	b := &Broker{
		backend: backend,
		logger:  options.logger,
		subs:    newRegistry(),
		cache:   newDispatchCache(),
	}
	b.enabled.Store(!options.disabled)
	return b, nil
}

// Subscribe registers job under the topic pattern. A malformed pattern fails
// right here with a *PatternError and nothing is added. Subscribing the same
// (pattern, job) pair twice keeps exactly one entry.
func (b *Broker) Subscribe(pattern string, job queue.Job) error {
	compiled, err := Compile(pattern)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrJobNil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs.add(compiled, job) {
		b.cache.invalidateAll()
		b.logger.Debug("subscribed",
			logger.Pattern(pattern),
			logger.TaskName(job.Name()),
			slog.Int("subscriptions", b.subs.len()))
	}
	return nil
}

// SubscribeFunc registers fn with the backend as a named job — the name is
// derived from the function's package path and qualified name, so repeated
// registration of the same source function resolves to the same unit — and
// subscribes it to the pattern. The registered job is returned so callers can
// also invoke it directly, outside the pub/sub path.
func (b *Broker) SubscribeFunc(pattern string, fn queue.JobFunc) (queue.Job, error) {
	// Validate the pattern before touching the backend so a bad pattern does
	// not leave a stray job registration behind.
	if _, err := Compile(pattern); err != nil {
		return nil, err
	}

	job, err := b.backend.Register(queue.JobFromFunc(fn))
	if err != nil {
		return nil, err
	}
	if err := b.Subscribe(pattern, job); err != nil {
		return nil, err
	}
	return job, nil
}

// SubscribeTyped registers a typed handler with the broker's backend under
// the given name (derived from fn when empty) and subscribes it to pattern.
func SubscribeTyped[T any](b *Broker, pattern, name string, fn func(context.Context, T) (any, error)) (queue.Job, error) {
	if _, err := Compile(pattern); err != nil {
		return nil, err
	}

	job, err := b.backend.Register(queue.NewTypedJob(name, fn))
	if err != nil {
		return nil, err
	}
	if err := b.Subscribe(pattern, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Unsubscribe removes the (pattern, job) subscription. Removing an entry that
// does not exist is a silent no-op; Unsubscribe never fails.
func (b *Broker) Unsubscribe(pattern string, job queue.Job) {
	if job == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs.remove(pattern, job.Name()) {
		b.cache.invalidateAll()
		b.logger.Debug("unsubscribed",
			logger.Pattern(pattern),
			logger.TaskName(job.Name()),
			slog.Int("subscriptions", b.subs.len()))
	}
}

// Publish dispatches the topic to all matching jobs as one asynchronous
// group, binding args to every matched job, and returns the backend's handle
// unchanged. With the gate disabled it returns an already-completed empty
// handle without consulting the registry or cache. Handler failures never
// surface here; they are recorded in the handle.
func (b *Broker) Publish(ctx context.Context, topic string, args ...any) (*queue.AsyncResult, error) {
	if !b.enabled.Load() {
		return queue.EmptyAsyncResult(), nil
	}

	g := b.group(topic, args)
	b.logger.Debug("publishing",
		logger.Topic(topic),
		slog.Int("matched", len(g)))

	return b.backend.Dispatch(ctx, g)
}

// PublishNow resolves the topic once and executes every matched job in the
// calling context, blocking until all of them finished. Failures of
// individual jobs are collected and returned joined as the call's error.
// With the gate disabled it returns an empty successful result immediately.
func (b *Broker) PublishNow(ctx context.Context, topic string, args ...any) (*queue.SyncResult, error) {
	if !b.enabled.Load() {
		return queue.EmptySyncResult(), nil
	}

	g := b.group(topic, args)
	b.logger.Debug("publishing synchronously",
		logger.Topic(topic),
		slog.Int("matched", len(g)))

	return b.backend.Apply(ctx, g)
}

// SetEnabled flips the gate for all subsequent Publish/PublishNow calls.
// Subscribe and Unsubscribe are unaffected; re-enabling restores the previous
// matching behavior with no need to re-subscribe.
func (b *Broker) SetEnabled(enabled bool) {
	b.enabled.Store(enabled)
}

// Enabled reports the current gate state.
func (b *Broker) Enabled() bool {
	return b.enabled.Load()
}

// Subscriptions returns a snapshot of the current subscription set in
// insertion order.
func (b *Broker) Subscriptions() []Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.subs.snapshot()
}

// group resolves the jobs matching topic and binds args into one signature
// per job, preserving subscription order.
func (b *Broker) group(topic string, args []any) queue.Group {
	jobs := b.resolve(topic)
	g := make(queue.Group, 0, len(jobs))
	for _, job := range jobs {
		g = append(g, queue.NewSignature(job.Name(), args...))
	}
	return g
}

// resolve returns the jobs matching topic, served from the dispatch cache
// when warm. A miss upgrades to the write lock, re-checks (another resolver
// may have rebuilt the entry while we waited) and rebuilds from a registry
// snapshot.
func (b *Broker) resolve(topic string) []queue.Job {
	b.mu.RLock()
	jobs, ok := b.cache.get(topic)
	b.mu.RUnlock()
	if ok {
		return jobs
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if jobs, ok := b.cache.get(topic); ok {
		return jobs
	}

	jobs = make([]queue.Job, 0)
	for _, sub := range b.subs.snapshot() {
		if sub.Pattern.Match(topic) {
			jobs = append(jobs, sub.Job)
		}
	}
	b.cache.put(topic, jobs)
	return jobs
}
