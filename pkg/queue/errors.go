package queue

import "errors"

// Common errors
var (
	// ErrRepositoryNil is returned when a nil repository is provided
	ErrRepositoryNil = errors.New("repository cannot be nil")

	// ErrRegistryNil is returned when a nil job registry is provided
	ErrRegistryNil = errors.New("job registry cannot be nil")

	// ErrJobNil is returned when a nil job is registered
	ErrJobNil = errors.New("job cannot be nil")

	// ErrJobNameEmpty is returned when a job has no name
	ErrJobNameEmpty = errors.New("job name cannot be empty")

	// ErrJobNotFound is returned when no job is registered for a task name
	ErrJobNotFound = errors.New("no job registered for task name")

	// ErrNoJobs is returned when a worker is started with an empty registry
	ErrNoJobs = errors.New("no jobs registered")

	// ErrArgsMarshal is returned when signature arguments cannot be encoded
	ErrArgsMarshal = errors.New("failed to marshal signature arguments")

	// ErrArgsUnmarshal is returned when a task payload cannot be decoded
	ErrArgsUnmarshal = errors.New("failed to unmarshal task arguments")

	// ErrResultMarshal is returned when a job return value cannot be encoded
	ErrResultMarshal = errors.New("failed to marshal job result")

	// ErrInvalidPriority is returned when priority is outside valid range
	ErrInvalidPriority = errors.New("priority must be between 0 and 100")

	// ErrNoTaskToClaim is returned by repositories when no task is available
	ErrNoTaskToClaim = errors.New("no task available to claim")

	// ErrTaskNotFound is returned when a task id is unknown to the repository
	ErrTaskNotFound = errors.New("task not found")

	// ErrGroupNotFound is returned when a group id is unknown to the repository
	ErrGroupNotFound = errors.New("dispatch group not found")
)
