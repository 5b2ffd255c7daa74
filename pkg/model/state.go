package model

import "fmt"

// TaskType identifies the kind of work a Task represents.
type TaskType string

const (
	TaskTypeSimulation      TaskType = "simulation"
	TaskTypeBasicStatistics TaskType = "basicStatistics"
	TaskTypeIdleTimes       TaskType = "idleTimes"
	TaskTypeThroughput      TaskType = "throughput"
)

// String returns the string representation of the task type.
func (t TaskType) String() string {
	return string(t)
}

// IsStatistics returns true for the post-processing task types.
func (t TaskType) IsStatistics() bool {
	switch t {
	case TaskTypeBasicStatistics, TaskTypeIdleTimes, TaskTypeThroughput:
		return true
	}
	return false
}

// TaskTypes returns every dispatchable task type.
func TaskTypes() []TaskType {
	return []TaskType{TaskTypeSimulation, TaskTypeBasicStatistics, TaskTypeIdleTimes, TaskTypeThroughput}
}

// StatisticsTypes returns the statistics task types in the order the
// resolver checks and enqueues them.
func StatisticsTypes() []TaskType {
	return []TaskType{TaskTypeBasicStatistics, TaskTypeIdleTimes, TaskTypeThroughput}
}

// ParseTaskType converts a wire name to a TaskType.
// "fullStatistics" is a progress flag, not a task type, and is rejected.
func ParseTaskType(s string) (TaskType, error) {
	for _, t := range TaskTypes() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown task type %q", s)
}

// TaskState is the scheduler container a Task currently lives in.
type TaskState string

const (
	TaskStateQueued  TaskState = "queued"
	TaskStateOffered TaskState = "offered"
	TaskStateRunning TaskState = "running"
)

// String returns the string representation of the task state.
func (s TaskState) String() string {
	return string(s)
}

// HasLease returns true if tasks in this state carry a lease.
func (s TaskState) HasLease() bool {
	return s == TaskStateOffered || s == TaskStateRunning
}

// ValidTaskTransitions defines the allowed container moves for Tasks.
// Leaving the scheduler entirely (finish, abort) is not listed.
var ValidTaskTransitions = map[TaskState][]TaskState{
	TaskStateQueued:  {TaskStateOffered},
	TaskStateOffered: {TaskStateRunning, TaskStateQueued},
	TaskStateRunning: {TaskStateQueued},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s TaskState) CanTransitionTo(next TaskState) bool {
	for _, allowed := range ValidTaskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
