package pubsub

import "github.com/dmitrymomot/taskpub/pkg/queue"

// Subscription binds a compiled pattern to a job.
type Subscription struct {
	Pattern *Pattern
	Job     queue.Job
}

type subscriptionKey struct {
	pattern string
	job     string
}

// registry holds the subscription set in insertion order. Two subscriptions
// are the same entry when both the pattern text and the job name match, no
// matter how often the pattern was compiled. The registry itself is not
// goroutine-safe; the Broker guards it together with the dispatch cache under
// one lock so a reader can never observe one without the other.
type registry struct {
	order []Subscription
	index map[subscriptionKey]struct{}
}

func newRegistry() *registry {
	return &registry{index: make(map[subscriptionKey]struct{})}
}

// add inserts the subscription and reports whether the set changed.
// Re-adding an existing key is a no-op.
func (r *registry) add(p *Pattern, job queue.Job) bool {
	key := subscriptionKey{pattern: p.String(), job: job.Name()}
	if _, exists := r.index[key]; exists {
		return false
	}
	r.index[key] = struct{}{}
	r.order = append(r.order, Subscription{Pattern: p, Job: job})
	return true
}

// remove deletes the entry with the matching key and reports whether the set
// changed. Absence is not an error.
func (r *registry) remove(pattern, jobName string) bool {
	key := subscriptionKey{pattern: pattern, job: jobName}
	if _, exists := r.index[key]; !exists {
		return false
	}
	delete(r.index, key)
	for i, sub := range r.order {
		if sub.Pattern.String() == pattern && sub.Job.Name() == jobName {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// snapshot returns a copy of the subscriptions in insertion order.
func (r *registry) snapshot() []Subscription {
	out := make([]Subscription, len(r.order))
	copy(out, r.order)
	return out
}

func (r *registry) len() int {
	return len(r.order)
}
