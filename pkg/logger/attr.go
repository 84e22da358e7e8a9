package logger

import (
	"log/slog"
	"strconv"

	"github.com/google/uuid"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// TaskID records a task identifier under the key "task_id".
func TaskID(id uuid.UUID) slog.Attr {
	return slog.String("task_id", id.String())
}

// GroupID records a dispatch group identifier under the key "group_id".
func GroupID(id uuid.UUID) slog.Attr {
	return slog.String("group_id", id.String())
}

// WorkerID records a worker identifier under the key "worker_id".
func WorkerID(id uuid.UUID) slog.Attr {
	return slog.String("worker_id", id.String())
}

// TaskName records a task name under the key "task_name".
func TaskName(name string) slog.Attr {
	return slog.String("task_name", name)
}

// Queue records a queue name under the key "queue".
func Queue(name string) slog.Attr {
	return slog.String("queue", name)
}

// Topic records a published topic under the key "topic".
func Topic(topic string) slog.Attr {
	return slog.String("topic", topic)
}

// Pattern records a subscription pattern under the key "pattern".
func Pattern(pattern string) slog.Attr {
	return slog.String("pattern", pattern)
}
