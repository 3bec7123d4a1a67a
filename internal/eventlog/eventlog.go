// Package eventlog appends one JSON object per line to an audit log.
// Writes are best-effort: a failing log must never destabilize the loop,
// so every helper swallows errors.
package eventlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Kind is the closed set of audit event kinds.
type Kind string

const (
	KindCycleStart    Kind = "cycle_start"
	KindCycleEnd      Kind = "cycle_end"
	KindIssueDispatch Kind = "issue_dispatch"
	KindWorkerResult  Kind = "worker_result"
	KindIssueSkipped  Kind = "issue_skipped"
	KindBackPressure  Kind = "back_pressure"
	KindError         Kind = "error"
)

// Log appends structured events to a JSONL file.
type Log struct {
	path string
	mu   sync.Mutex

	// now is swappable for tests.
	now func() time.Time
}

// New returns a Log writing to path. The file and its directory are created
// lazily on first emit.
func New(path string) *Log {
	return &Log{path: path, now: time.Now}
}

// Emit appends one event with kind plus the given fields, injecting the
// generation timestamp. Failures are swallowed.
func (l *Log) Emit(kind Kind, fields map[string]any) {
	record := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		record[k] = v
	}
	record["ts"] = l.now().UTC().Format(time.RFC3339)
	record["event"] = string(kind)

	payload, err := json.Marshal(record)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	f.Write(append(payload, '\n'))
}

func (l *Log) CycleStart(repo string) {
	l.Emit(KindCycleStart, map[string]any{"repo": repo})
}

func (l *Log) CycleEnd(repo string) {
	l.Emit(KindCycleEnd, map[string]any{"repo": repo})
}

func (l *Log) IssueDispatch(repo string, issues []int, container string, grouped bool) {
	l.Emit(KindIssueDispatch, map[string]any{
		"repo":      repo,
		"issues":    issues,
		"container": container,
		"grouped":   grouped,
	})
}

func (l *Log) WorkerResult(repo string, issues []int, success bool, durationS float64, prNum int, prURL string) {
	fields := map[string]any{
		"repo":       repo,
		"issues":     issues,
		"success":    success,
		"duration_s": durationS,
	}
	if prNum != 0 {
		fields["pr_num"] = prNum
		fields["pr_url"] = prURL
	}
	l.Emit(KindWorkerResult, fields)
}

func (l *Log) IssueSkipped(repo string, issue int, reason string, prNum int) {
	fields := map[string]any{
		"repo":   repo,
		"issue":  issue,
		"reason": reason,
	}
	if prNum != 0 {
		fields["pr_num"] = prNum
	}
	l.Emit(KindIssueSkipped, fields)
}

func (l *Log) BackPressure(repo string, openPRs, threshold int) {
	l.Emit(KindBackPressure, map[string]any{
		"repo":      repo,
		"open_prs":  openPRs,
		"threshold": threshold,
	})
}

func (l *Log) Error(repo, message string) {
	l.Emit(KindError, map[string]any{"repo": repo, "message": message})
}
