package model

import "fmt"

// ErrorType is the kind of a scheduler error as seen by RPC callers.
type ErrorType string

const (
	ErrTypeInvalidArgumentType ErrorType = "InvalidArgumentType"
	ErrTypeUnknownTaskType     ErrorType = "UnknownTaskType"
	ErrTypeJobNotFound         ErrorType = "JobNotFound"
	ErrTypeDuplicateTask       ErrorType = "DuplicateTask"
	ErrTypeAlreadyDone         ErrorType = "AlreadyDone"
	ErrTypeWorkerHasTask       ErrorType = "WorkerHasTask"
	ErrTypeInvalidWorkerID     ErrorType = "InvalidWorkerId"
	ErrTypeInvalidSignature    ErrorType = "InvalidSignature"
	ErrTypeStorageError        ErrorType = "StorageError"
	ErrTypeJobExists           ErrorType = "JobExists"

	// Protocol-level failures of the RPC binding.
	ErrTypeParseError     ErrorType = "ParseError"
	ErrTypeMethodNotFound ErrorType = "MethodNotFound"
	ErrTypeInternal       ErrorType = "InternalError"
)

// SchedulerError is a structured error returned by scheduler operations and
// serialized verbatim as the JSON-RPC error object.
type SchedulerError struct {
	Type         ErrorType `json:"type"`
	TaskType     TaskType  `json:"taskType,omitempty"`
	ArgumentName string    `json:"argumentName,omitempty"`
	Msg          string    `json:"msg,omitempty"`
}

func (e *SchedulerError) Error() string {
	switch {
	case e.ArgumentName != "" && e.TaskType != "":
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.TaskType, e.ArgumentName)
	case e.ArgumentName != "":
		return fmt.Sprintf("%s: %s", e.Type, e.ArgumentName)
	case e.TaskType != "":
		return fmt.Sprintf("%s: %s", e.Type, e.TaskType)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Type, e.Msg)
	}
	return string(e.Type)
}

// Is reports whether target is a SchedulerError of the same Type, so that
// errors.Is(err, ErrInvalidSignature) works for any wrapped instance.
func (e *SchedulerError) Is(target error) bool {
	t, ok := target.(*SchedulerError)
	return ok && t.Type == e.Type
}

// Sentinels for kinds that carry no detail.
var (
	ErrJobNotFound      = &SchedulerError{Type: ErrTypeJobNotFound}
	ErrAlreadyDone      = &SchedulerError{Type: ErrTypeAlreadyDone}
	ErrWorkerHasTask    = &SchedulerError{Type: ErrTypeWorkerHasTask}
	ErrInvalidWorkerID  = &SchedulerError{Type: ErrTypeInvalidWorkerID}
	ErrInvalidSignature = &SchedulerError{Type: ErrTypeInvalidSignature}
	ErrDuplicateTask    = &SchedulerError{Type: ErrTypeDuplicateTask}
	ErrStorage          = &SchedulerError{Type: ErrTypeStorageError}
	ErrJobExists        = &SchedulerError{Type: ErrTypeJobExists}
)

// NewDuplicateTaskError reports an enqueue for a (project, job, type) that
// already exists in the scheduler.
func NewDuplicateTaskError(t TaskType) *SchedulerError {
	return &SchedulerError{Type: ErrTypeDuplicateTask, TaskType: t}
}

// NewInvalidArgumentError reports an argument of the wrong shape.
func NewInvalidArgumentError(argumentName string) *SchedulerError {
	return &SchedulerError{Type: ErrTypeInvalidArgumentType, ArgumentName: argumentName}
}

// NewUnknownTaskTypeError reports an unrecognized task type name at the given argument position.
func NewUnknownTaskTypeError(name, argumentName string) *SchedulerError {
	return &SchedulerError{Type: ErrTypeUnknownTaskType, TaskType: TaskType(name), ArgumentName: argumentName}
}

// NewStorageError wraps a failure of the job progress source.
func NewStorageError(cause error) *SchedulerError {
	return &SchedulerError{Type: ErrTypeStorageError, Msg: cause.Error()}
}
