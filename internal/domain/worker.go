package domain

import "time"

// WorkerRecord is the persisted history of one dispatched container working
// on an issue. Records are keyed by (repo, issue number), created on
// dispatch, finalized exactly once, and retained indefinitely.
type WorkerRecord struct {
	Repo          string       `json:"repo"`
	IssueNum      int          `json:"issue_num"`
	IssueTitle    string       `json:"issue_title,omitempty"`
	Branch        string       `json:"branch"`
	ContainerName string       `json:"container_name"`
	PRNum         int          `json:"pr_num,omitempty"`
	PRURL         string       `json:"pr_url,omitempty"`
	Status        WorkerStatus `json:"status"`
	StartedAt     time.Time    `json:"started_at"`
	EndedAt       *time.Time   `json:"ended_at,omitempty"`
	DurationS     float64      `json:"duration_s,omitempty"`
	ExitCode      *int         `json:"exit_code,omitempty"`
	LogPath       string       `json:"log_path,omitempty"`
}

// Finalize moves an active record to a terminal status and fills in the
// completion fields. DurationS is derived from the record's own timestamps.
func (w *WorkerRecord) Finalize(status WorkerStatus, now time.Time, exitCode *int) {
	w.Status = status
	w.EndedAt = &now
	w.DurationS = now.Sub(w.StartedAt).Seconds()
	w.ExitCode = exitCode
}
