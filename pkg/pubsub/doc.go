// Package pubsub implements a topic-based publish/subscribe router in front
// of the task-execution backend from pkg/queue.
//
// Callers publish to a dotted topic string; the Broker determines which
// previously subscribed jobs match and hands all matches to the backend as
// one combined dispatch. Topic patterns support two wildcards:
//
//	orders.*.created   matches orders.eu.created, not orders.eu.fr.created
//	logs.#             matches logs.app and logs.app.error.timeout
//
// `*` stands for exactly one non-empty separator-free segment, `#` for one or
// more characters spanning any number of segments, and a pattern always
// matches the whole topic. Matching is implemented with a tokenizer rather
// than regular expressions, so no other character has special meaning.
//
// # Usage
//
//	jobs := queue.NewJobRegistry()
//	backend, _ := queue.NewDispatcher(queue.NewMemoryStorage(), jobs)
//	broker, _ := pubsub.New(backend)
//
//	notify, _ := broker.SubscribeFunc("orders.*.created", notifyWarehouse)
//
//	// Fire and forget: matched jobs run on workers.
//	handle, _ := broker.Publish(ctx, "orders.eu.created", orderID)
//
//	// Or block until every matched job finished in this process.
//	result, err := broker.PublishNow(ctx, "orders.eu.created", orderID)
//
//	_ = notify // the registered job can also be invoked directly
//
// Publishing a topic nobody matches succeeds trivially with an empty result.
// SetEnabled(false) suppresses all dispatch without touching subscriptions.
//
// # Resolution caching
//
// The Broker memoizes resolved topics in a per-topic dispatch cache that is
// cleared on every subscribe/unsubscribe, so a publish issued after a
// mutation always sees the new subscription set. Registry and cache share a
// single lock; warm-topic publishes only take its read side.
package pubsub
