package domain

// TaskStatus represents the lifecycle state of a queued task
type TaskStatus string

const (
	TaskQueued  TaskStatus = "queued"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	TaskFailed  TaskStatus = "failed"
)

// WorkerStatus represents the execution state of a dispatched worker
type WorkerStatus string

const (
	WorkerRunning WorkerStatus = "running"
	// WorkerRecovering is a legacy status still found in old records.
	// It is accepted on decode but never written by current code.
	WorkerRecovering WorkerStatus = "recovering"
	WorkerDone       WorkerStatus = "done"
	WorkerFailed     WorkerStatus = "failed"
)

// IsTerminal reports whether the worker has finished, successfully or not.
func (s WorkerStatus) IsTerminal() bool {
	return s == WorkerDone || s == WorkerFailed
}

// IsActive reports whether the worker is still considered in flight.
// Every status is exactly one of active or terminal.
func (s WorkerStatus) IsActive() bool {
	return !s.IsTerminal()
}

// Priority represents task priority
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = ""
	PriorityLow    Priority = "low"
)
