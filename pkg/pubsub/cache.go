package pubsub

import "github.com/dmitrymomot/taskpub/pkg/queue"

// dispatchCache memoizes, per exact topic string, the jobs whose pattern
// matched at last resolution, in subscription order. The cache is cleared
// wholesale on every registry mutation: subscription churn is rare next to
// publish volume and the topic space is unbounded, so per-topic invalidation
// would buy nothing for the cost of reverse-indexing patterns to topics.
// Like the registry it relies on the Broker's lock for goroutine safety.
type dispatchCache struct {
	entries map[string][]queue.Job
}

func newDispatchCache() *dispatchCache {
	return &dispatchCache{entries: make(map[string][]queue.Job)}
}

func (c *dispatchCache) get(topic string) ([]queue.Job, bool) {
	jobs, ok := c.entries[topic]
	return jobs, ok
}

func (c *dispatchCache) put(topic string, jobs []queue.Job) {
	c.entries[topic] = jobs
}

func (c *dispatchCache) invalidateAll() {
	clear(c.entries)
}
