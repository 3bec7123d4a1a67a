// Package decision holds the pure dispatch and finalization rules.
// Nothing here performs I/O; both functions are total over their inputs.
package decision

import "github.com/kilnworks/kiln/internal/domain"

// SkipReason explains why an issue was not dispatched.
type SkipReason string

const (
	SkipAlreadyCompleted SkipReason = "already_completed"
	SkipInFlight         SkipReason = "in_flight"
	SkipExistingPR       SkipReason = "existing_pr"
)

// IssueAction is the outcome of evaluating one candidate issue.
type IssueAction struct {
	Dispatch bool
	Reason   SkipReason // set only when Dispatch is false
}

// DecideIssueAction maps the observed worker status and pull-request state
// for an issue to a dispatch decision. status is nil when no worker record
// exists for the issue.
//
// Completed work is never redone; in-flight work is never duplicated; a
// prior failure always earns a retry, even if it left a stray PR behind;
// brand-new work is skipped only when a PR already exists for its branch.
func DecideIssueAction(status *domain.WorkerStatus, hasPR bool) IssueAction {
	if status != nil {
		switch {
		case *status == domain.WorkerDone:
			return IssueAction{Reason: SkipAlreadyCompleted}
		case status.IsActive():
			return IssueAction{Reason: SkipInFlight}
		default: // failed
			return IssueAction{Dispatch: true}
		}
	}
	if hasPR {
		return IssueAction{Reason: SkipExistingPR}
	}
	return IssueAction{Dispatch: true}
}

// Finalization is the verdict on an active worker record.
type Finalization string

const (
	StillRunning Finalization = "still_running"
	Done         Finalization = "done"
	Failed       Finalization = "failed"
)

// DecideFinalization maps container liveness and pull-request existence to
// a worker verdict. Liveness is authoritative while it holds; once the
// container is gone, a pull request is the sole success signal.
func DecideFinalization(containerAlive, prExists bool) Finalization {
	if containerAlive {
		return StillRunning
	}
	if prExists {
		return Done
	}
	return Failed
}
