package decision

import (
	"testing"

	"github.com/kilnworks/kiln/internal/domain"
)

func statusPtr(s domain.WorkerStatus) *domain.WorkerStatus { return &s }

func TestDecideIssueAction_Exhaustive(t *testing.T) {
	tests := []struct {
		name         string
		status       *domain.WorkerStatus
		hasPR        bool
		wantDispatch bool
		wantReason   SkipReason
	}{
		{"done without pr", statusPtr(domain.WorkerDone), false, false, SkipAlreadyCompleted},
		{"done with pr", statusPtr(domain.WorkerDone), true, false, SkipAlreadyCompleted},
		{"running without pr", statusPtr(domain.WorkerRunning), false, false, SkipInFlight},
		{"running with pr", statusPtr(domain.WorkerRunning), true, false, SkipInFlight},
		{"recovering without pr", statusPtr(domain.WorkerRecovering), false, false, SkipInFlight},
		{"recovering with pr", statusPtr(domain.WorkerRecovering), true, false, SkipInFlight},
		{"failed without pr", statusPtr(domain.WorkerFailed), false, true, ""},
		{"failed with pr", statusPtr(domain.WorkerFailed), true, true, ""},
		{"no record without pr", nil, false, true, ""},
		{"no record with pr", nil, true, false, SkipExistingPR},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecideIssueAction(tt.status, tt.hasPR)
			if got.Dispatch != tt.wantDispatch {
				t.Errorf("Dispatch = %v, want %v", got.Dispatch, tt.wantDispatch)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.wantReason)
			}
		})
	}
}

func TestDecideIssueAction_FailedAlwaysDispatches(t *testing.T) {
	for _, hasPR := range []bool{true, false} {
		got := DecideIssueAction(statusPtr(domain.WorkerFailed), hasPR)
		if !got.Dispatch {
			t.Errorf("failed worker with hasPR=%v must dispatch", hasPR)
		}
	}
}

func TestDecideFinalization_Exhaustive(t *testing.T) {
	tests := []struct {
		alive    bool
		prExists bool
		want     Finalization
	}{
		{true, true, StillRunning},
		{true, false, StillRunning},
		{false, true, Done},
		{false, false, Failed},
	}

	for _, tt := range tests {
		got := DecideFinalization(tt.alive, tt.prExists)
		if got != tt.want {
			t.Errorf("DecideFinalization(%v, %v) = %q, want %q", tt.alive, tt.prExists, got, tt.want)
		}
	}
}
