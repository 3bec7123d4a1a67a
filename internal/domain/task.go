package domain

import (
	"fmt"
	"time"
)

// Task represents a queued unit of requested work, tracked independently
// of any specific repository issue.
type Task struct {
	ID          string
	Title       string
	Description string
	Repo        string
	Priority    Priority
	Status      TaskStatus
	CreatedAt   time.Time
	StartedAt   *time.Time
	EndedAt     *time.Time
}

// InvalidTransitionError reports a state machine operation applied in the
// wrong state. The task is left unmodified.
type InvalidTransitionError struct {
	Op       string
	Required TaskStatus
	Actual   TaskStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: task must be %q, is %q", e.Op, e.Required, e.Actual)
}

// Start moves the task from queued to running and records the start time.
func (t *Task) Start(now time.Time) error {
	if t.Status != TaskQueued {
		return &InvalidTransitionError{Op: "start", Required: TaskQueued, Actual: t.Status}
	}
	t.Status = TaskRunning
	t.StartedAt = &now
	return nil
}

// Complete moves the task from running to done and records the end time.
func (t *Task) Complete(now time.Time) error {
	if t.Status != TaskRunning {
		return &InvalidTransitionError{Op: "complete", Required: TaskRunning, Actual: t.Status}
	}
	t.Status = TaskDone
	t.EndedAt = &now
	return nil
}

// Fail moves the task from running to failed and records the end time.
func (t *Task) Fail(now time.Time) error {
	if t.Status != TaskRunning {
		return &InvalidTransitionError{Op: "fail", Required: TaskRunning, Actual: t.Status}
	}
	t.Status = TaskFailed
	t.EndedAt = &now
	return nil
}

// Retry requeues a failed task, clearing its execution timestamps.
func (t *Task) Retry(now time.Time) error {
	if t.Status != TaskFailed {
		return &InvalidTransitionError{Op: "retry", Required: TaskFailed, Actual: t.Status}
	}
	t.Status = TaskQueued
	t.StartedAt = nil
	t.EndedAt = nil
	return nil
}
