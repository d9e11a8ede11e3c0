package coro

import "math"

// TaskState summarises a task's flags for observers.
type TaskState string

const (
	TaskStatePending TaskState = "PENDING"
	TaskStateRunning TaskState = "RUNNING"
	TaskStateWaiting TaskState = "WAITING"
	TaskStatePaused  TaskState = "PAUSED"
	TaskStateSuccess TaskState = "SUCCESS"
	TaskStateFailed  TaskState = "FAILED"
	TaskStateKilled  TaskState = "KILLED"
)

// String returns the string representation of the task state.
func (s TaskState) String() string {
	return string(s)
}

// IsTerminal returns true if the task will never be advanced again.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateSuccess, TaskStateFailed, TaskStateKilled:
		return true
	}
	return false
}

// TaskInfo is a point-in-time copy of a live task.
type TaskInfo struct {
	Handle    Handle    `json:"handle"`
	Tag       string    `json:"tag"`
	State     TaskState `json:"state"`
	Delay     float64   `json:"-"`
	Running   bool      `json:"running"`
	Paused    bool      `json:"paused"`
	Killed    bool      `json:"killed"`
	Succeeded bool      `json:"succeeded"`
	Splicing  bool      `json:"splicing"`
	Err       string    `json:"error,omitempty"`
}

func (i TaskInfo) derivedState() TaskState {
	switch {
	case i.Succeeded:
		return TaskStateSuccess
	case i.Err != "":
		return TaskStateFailed
	case i.Killed:
		return TaskStateKilled
	case i.Paused:
		return TaskStatePaused
	case i.Delay > 0, math.IsNaN(i.Delay), math.IsInf(i.Delay, -1):
		return TaskStateWaiting
	default:
		return TaskStateRunning
	}
}
