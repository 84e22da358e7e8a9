// Package async provides small generic helpers for running computations in
// the background and collecting their results.
//
// The central type is Future, obtained from Async, which starts the supplied
// function in its own goroutine. A caller can block on the result with Await,
// bound the wait with AwaitWithTimeout, or poll with IsComplete.
//
// Two helpers coordinate several futures at once: WaitAll stops at the first
// failure, while CollectAll always drains every future and reports all
// failures joined into a single error. The latter is what the task queue uses
// to apply a group of task signatures synchronously without losing any
// individual failure.
//
//	f := async.Async(ctx, 42, func(_ context.Context, v int) (string, error) {
//	    return strconv.Itoa(v), nil
//	})
//	s, err := f.Await()
package async
