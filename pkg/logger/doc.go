// Package logger builds configured slog loggers and provides attribute
// helpers for the identifiers that recur across the queue and pub/sub
// packages (task, group, worker, topic).
//
// # Usage
//
//	log := logger.New(logger.WithProduction("orders-worker"))
//	logger.SetAsDefault(log)
//
//	log.Info("task completed",
//		logger.TaskID(task.ID),
//		logger.Queue(task.Queue))
//
// Defaults are production-safe: JSON output at info level on stdout.
package logger
