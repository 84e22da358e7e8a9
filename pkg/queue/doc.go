// Package queue provides a repository-agnostic task-execution backend built
// around named jobs, bound-argument signatures, and group dispatch.
//
// The package is organised around three main components:
//
//   - Dispatcher — turns signature groups into persisted tasks and returns an
//     AsyncResult handle, or applies a group synchronously in the calling
//     context
//   - Worker     — claims pending tasks and invokes the registered jobs,
//     storing results and handling retries
//   - JobRegistry — maps task names to Job implementations, shared between
//     dispatchers and workers
//
// Components interact only through small repository interfaces, so the queue
// can be backed by any storage engine. Three implementations ship with the
// package: MemoryStorage for tests and single-process use, RedisStorage, and
// PostgresStorage for multi-process deployments.
//
// # Jobs and signatures
//
// A Job is a named, remotely invocable unit of work. Names travel across
// process boundaries; the implementation is resolved from the JobRegistry at
// execution time. Signatures bind positional arguments to a task name at
// publish time, and a Group combines several signatures into one dispatch:
//
//	jobs := queue.NewJobRegistry()
//	job, _ := jobs.Register(queue.NewJob("billing.charge", chargeFn))
//
//	d, _ := queue.NewDispatcher(queue.NewMemoryStorage(), jobs)
//	handle, _ := d.Dispatch(ctx, queue.NewGroup(
//	    queue.NewSignature(job.Name(), customerID, amount),
//	))
//	results, _ := handle.Wait(ctx)
//
// # Asynchronous vs synchronous execution
//
// Dispatch persists tasks and returns immediately; execution happens on
// workers and failures surface only when the AsyncResult is inspected. Apply
// executes the whole group in the calling context, blocks until every
// signature finished, and reports all failures joined into one error.
//
// # Error Handling
//
// Package-level sentinel errors (e.g. ErrJobNotFound, ErrNoTaskToClaim)
// signal violations of business invariants and can be checked with errors.Is.
package queue
