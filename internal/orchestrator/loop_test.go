package orchestrator

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/kilnworks/kiln/internal/config"
	"github.com/kilnworks/kiln/internal/domain"
	"github.com/kilnworks/kiln/internal/drain"
	"github.com/kilnworks/kiln/internal/eventlog"
	"github.com/kilnworks/kiln/internal/hooks"
	"github.com/kilnworks/kiln/internal/lock"
	"github.com/kilnworks/kiln/internal/runtime"
	"github.com/kilnworks/kiln/internal/store"
	"github.com/kilnworks/kiln/internal/tracker"
)

type fixture struct {
	loop    *Loop
	cfg     *config.Config
	repo    config.RepoConfig
	store   *store.MemStore
	runtime *runtime.Fake
	tracker *tracker.Fake
	drain   *drain.Signal
	events  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stateDir := t.TempDir()

	repo := config.RepoConfig{
		Name:           "acme/widgets",
		CandidateLabel: "kiln",
		DoneLabel:      "kiln-done",
		FailedLabel:    "kiln-failed",
		BranchPrefix:   "kiln",
	}
	cfg := config.Default()
	cfg.General.StateDir = stateDir
	cfg.General.MaxParallel = 3
	cfg.General.MaxOpenPRs = 5
	cfg.Repos = []config.RepoConfig{repo}

	f := &fixture{
		cfg:     cfg,
		repo:    repo,
		store:   store.NewMemStore(),
		runtime: runtime.NewFake(),
		tracker: tracker.NewFake(),
		drain:   drain.New(stateDir),
		events:  cfg.EventLogPath(),
	}
	f.loop = New(cfg, f.store, f.runtime, f.tracker,
		eventlog.New(f.events), hooks.New(cfg.HooksDir()), f.drain, nil, nil)
	return f
}

func (f *fixture) eventsOfKind(t *testing.T, kind string) []map[string]any {
	t.Helper()
	file, err := os.Open(f.events)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatal(err)
	}
	defer file.Close()

	var matched []map[string]any
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("bad event line: %v", err)
		}
		if record["event"] == kind {
			matched = append(matched, record)
		}
	}
	return matched
}

func TestCycle_DispatchesFreshIssue(t *testing.T) {
	f := newFixture(t)
	f.tracker.Issues["acme/widgets"] = []domain.Issue{{Number: 42, Title: "Fix the flange"}}

	f.loop.RunCycle(context.Background(), f.repo)

	if len(f.runtime.Launched) != 1 {
		t.Fatalf("launched = %d, want 1", len(f.runtime.Launched))
	}
	launch := f.runtime.Launched[0]
	if launch.Branch != "kiln/issue-42" {
		t.Errorf("branch = %q", launch.Branch)
	}
	if launch.Prompt == "" {
		t.Error("launch has no prompt")
	}

	record, err := f.store.Load("acme/widgets", 42)
	if err != nil || record == nil {
		t.Fatalf("record = %v, err = %v", record, err)
	}
	if record.Status != domain.WorkerRunning {
		t.Errorf("record status = %q, want running", record.Status)
	}

	if n := len(f.eventsOfKind(t, "issue_dispatch")); n != 1 {
		t.Errorf("issue_dispatch events = %d, want 1", n)
	}
}

func TestCycle_SkipsInFlightIssue(t *testing.T) {
	f := newFixture(t)
	f.tracker.Issues["acme/widgets"] = []domain.Issue{{Number: 42, Title: "Fix the flange"}}

	// First cycle dispatches; container stays alive for the second.
	f.loop.RunCycle(context.Background(), f.repo)
	f.loop.RunCycle(context.Background(), f.repo)

	if len(f.runtime.Launched) != 1 {
		t.Fatalf("launched = %d, want 1 (no duplicate dispatch)", len(f.runtime.Launched))
	}
	skips := f.eventsOfKind(t, "issue_skipped")
	if len(skips) != 1 {
		t.Fatalf("issue_skipped events = %d, want 1", len(skips))
	}
	if skips[0]["reason"] != "in_flight" {
		t.Errorf("skip reason = %v, want in_flight", skips[0]["reason"])
	}
}

func TestCycle_FinalizesDoneWithPR(t *testing.T) {
	f := newFixture(t)
	started := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	ended := started.Add(90 * time.Second)
	f.loop.now = func() time.Time { return ended }

	record := &domain.WorkerRecord{
		Repo:          "acme/widgets",
		IssueNum:      42,
		Branch:        "kiln/issue-42",
		ContainerName: "kiln-acme-widgets-42-abc",
		Status:        domain.WorkerRunning,
		StartedAt:     started,
	}
	f.store.Save(record)
	f.runtime.SetRunning(record.ContainerName, false)
	f.runtime.SetExitCode(record.ContainerName, 0)
	f.tracker.SetPR("acme/widgets", "kiln/issue-42", &domain.PullRequest{Number: 7, URL: "https://example.com/pr/7"})

	f.loop.RunCycle(context.Background(), f.repo)

	got, _ := f.store.Load("acme/widgets", 42)
	if got.Status != domain.WorkerDone {
		t.Fatalf("status = %q, want done", got.Status)
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(ended) {
		t.Errorf("EndedAt = %v, want %v", got.EndedAt, ended)
	}
	if got.DurationS != 90 {
		t.Errorf("DurationS = %v, want 90", got.DurationS)
	}
	if got.PRNum != 7 {
		t.Errorf("PRNum = %d, want 7", got.PRNum)
	}

	results := f.eventsOfKind(t, "worker_result")
	if len(results) != 1 || results[0]["success"] != true {
		t.Errorf("worker_result = %v", results)
	}
	if len(f.tracker.Transitions) != 1 {
		t.Errorf("label transitions = %v, want candidate->done", f.tracker.Transitions)
	}
}

func TestCycle_FinalizesFailedWithoutPR(t *testing.T) {
	f := newFixture(t)
	record := &domain.WorkerRecord{
		Repo:          "acme/widgets",
		IssueNum:      42,
		Branch:        "kiln/issue-42",
		ContainerName: "kiln-acme-widgets-42-abc",
		Status:        domain.WorkerRunning,
		StartedAt:     time.Now().UTC().Add(-time.Minute),
	}
	f.store.Save(record)
	f.runtime.SetRunning(record.ContainerName, false)
	f.runtime.SetExitCode(record.ContainerName, 1)

	f.loop.RunCycle(context.Background(), f.repo)

	got, _ := f.store.Load("acme/widgets", 42)
	if got.Status != domain.WorkerFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if got.ExitCode == nil || *got.ExitCode != 1 {
		t.Errorf("ExitCode = %v, want 1", got.ExitCode)
	}

	results := f.eventsOfKind(t, "worker_result")
	if len(results) != 1 || results[0]["success"] != false {
		t.Errorf("worker_result = %v", results)
	}
}

func TestCycle_AliveContainerStaysRunning(t *testing.T) {
	f := newFixture(t)
	record := &domain.WorkerRecord{
		Repo:          "acme/widgets",
		IssueNum:      42,
		Branch:        "kiln/issue-42",
		ContainerName: "kiln-acme-widgets-42-abc",
		Status:        domain.WorkerRunning,
		StartedAt:     time.Now().UTC(),
	}
	f.store.Save(record)
	f.runtime.SetRunning(record.ContainerName, true)
	// Even with a PR up, liveness is authoritative.
	f.tracker.SetPR("acme/widgets", "kiln/issue-42", &domain.PullRequest{Number: 7})

	f.loop.RunCycle(context.Background(), f.repo)

	got, _ := f.store.Load("acme/widgets", 42)
	if got.Status != domain.WorkerRunning {
		t.Errorf("status = %q, want running", got.Status)
	}
}

func TestCycle_FailedRecordRedispatchesDespitePR(t *testing.T) {
	f := newFixture(t)
	f.tracker.Issues["acme/widgets"] = []domain.Issue{{Number: 42, Title: "Fix the flange"}}
	f.store.Save(&domain.WorkerRecord{
		Repo:      "acme/widgets",
		IssueNum:  42,
		Branch:    "kiln/issue-42",
		Status:    domain.WorkerFailed,
		StartedAt: time.Now().UTC().Add(-time.Hour),
	})
	// A stray PR from the failed attempt must not block the retry.
	f.tracker.SetPR("acme/widgets", "kiln/issue-42", &domain.PullRequest{Number: 9})

	f.loop.RunCycle(context.Background(), f.repo)

	if len(f.runtime.Launched) != 1 {
		t.Errorf("launched = %d, want 1", len(f.runtime.Launched))
	}
}

func TestCycle_ExistingPRSkipsFreshIssue(t *testing.T) {
	f := newFixture(t)
	f.tracker.Issues["acme/widgets"] = []domain.Issue{{Number: 42, Title: "Fix the flange"}}
	f.tracker.SetPR("acme/widgets", "kiln/issue-42", &domain.PullRequest{Number: 9})

	f.loop.RunCycle(context.Background(), f.repo)

	if len(f.runtime.Launched) != 0 {
		t.Errorf("launched = %d, want 0", len(f.runtime.Launched))
	}
	skips := f.eventsOfKind(t, "issue_skipped")
	if len(skips) != 1 || skips[0]["reason"] != "existing_pr" {
		t.Errorf("skips = %v", skips)
	}
	if skips[0]["pr_num"] != float64(9) {
		t.Errorf("skip pr_num = %v", skips[0]["pr_num"])
	}
	// No record is written for this path; the decision is recomputed
	// from PR state next cycle.
	if record, _ := f.store.Load("acme/widgets", 42); record != nil {
		t.Error("skip path must not write a worker record")
	}
}

func TestCycle_DrainPausesDispatch(t *testing.T) {
	f := newFixture(t)
	f.tracker.Issues["acme/widgets"] = []domain.Issue{{Number: 42, Title: "Fix the flange"}}
	f.drain.Set()

	f.loop.RunCycle(context.Background(), f.repo)

	if len(f.runtime.Launched) != 0 {
		t.Errorf("launched = %d, want 0 while draining", len(f.runtime.Launched))
	}
	if n := len(f.eventsOfKind(t, "back_pressure")); n != 1 {
		t.Errorf("back_pressure events = %d, want 1", n)
	}
}

func TestCycle_MaxParallelCeilingStopsDispatch(t *testing.T) {
	f := newFixture(t)
	f.cfg.General.MaxParallel = 1
	f.tracker.Issues["acme/widgets"] = []domain.Issue{
		{Number: 42, Title: "One"},
		{Number: 43, Title: "Two"},
	}

	f.loop.RunCycle(context.Background(), f.repo)

	if len(f.runtime.Launched) != 1 {
		t.Fatalf("launched = %d, want 1", len(f.runtime.Launched))
	}
	if n := len(f.eventsOfKind(t, "back_pressure")); n != 1 {
		t.Errorf("back_pressure events = %d, want 1", n)
	}
}

func TestCycle_OpenPRCeilingStopsDispatch(t *testing.T) {
	f := newFixture(t)
	f.cfg.General.MaxOpenPRs = 2
	f.tracker.OpenPRs["acme/widgets"] = 2
	f.tracker.Issues["acme/widgets"] = []domain.Issue{{Number: 42, Title: "One"}}

	f.loop.RunCycle(context.Background(), f.repo)

	if len(f.runtime.Launched) != 0 {
		t.Errorf("launched = %d, want 0", len(f.runtime.Launched))
	}
	pressure := f.eventsOfKind(t, "back_pressure")
	if len(pressure) != 1 {
		t.Fatalf("back_pressure events = %d, want 1", len(pressure))
	}
	if pressure[0]["open_prs"] != float64(2) || pressure[0]["threshold"] != float64(2) {
		t.Errorf("back_pressure fields = %v", pressure[0])
	}
}

func TestCycle_HeldLockSkipsRepository(t *testing.T) {
	f := newFixture(t)
	f.tracker.Issues["acme/widgets"] = []domain.Issue{{Number: 42, Title: "One"}}

	// Another "process" (this one, in fact) already holds the lock.
	guard, err := lock.Acquire(f.cfg.LocksDir(), "acme/widgets", false)
	if err != nil {
		t.Fatal(err)
	}
	defer guard.Release()

	f.loop.RunCycle(context.Background(), f.repo)

	if len(f.runtime.Launched) != 0 {
		t.Errorf("launched = %d, want 0 with lock held", len(f.runtime.Launched))
	}
	// The cycle is still audited, and the skip is not an error.
	if n := len(f.eventsOfKind(t, "cycle_start")); n != 1 {
		t.Errorf("cycle_start events = %d, want 1", n)
	}
	if n := len(f.eventsOfKind(t, "error")); n != 0 {
		t.Errorf("error events = %d, want 0", n)
	}
}

func TestCycle_LaunchFailureContinues(t *testing.T) {
	f := newFixture(t)
	f.runtime.LaunchErr = os.ErrPermission
	f.tracker.Issues["acme/widgets"] = []domain.Issue{{Number: 42, Title: "One"}}

	f.loop.RunCycle(context.Background(), f.repo)

	if n := len(f.eventsOfKind(t, "error")); n != 1 {
		t.Errorf("error events = %d, want 1", n)
	}
	if record, _ := f.store.Load("acme/widgets", 42); record != nil {
		t.Error("failed launch must not persist a running record")
	}
	// The cycle itself still completes.
	if n := len(f.eventsOfKind(t, "cycle_end")); n != 1 {
		t.Errorf("cycle_end events = %d, want 1", n)
	}
}

func TestRun_SingleCycleMode(t *testing.T) {
	f := newFixture(t)
	f.tracker.Issues["acme/widgets"] = []domain.Issue{{Number: 42, Title: "One"}}

	if err := f.loop.Run(context.Background(), true); err != nil {
		t.Fatalf("Run(once) error = %v", err)
	}
	if len(f.runtime.Launched) != 1 {
		t.Errorf("launched = %d, want 1", len(f.runtime.Launched))
	}
	// The lock is released after the cycle.
	if pid := lock.HolderPID(f.cfg.LocksDir(), "acme/widgets"); pid != 0 {
		t.Errorf("lock still held by %d after Run", pid)
	}
}

func TestRun_CancelledContextStops(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		f.loop.Run(ctx, false)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("acme/widgets", domain.Issue{Number: 42, Title: "Fix the flange", Body: "It wobbles."}, "kiln/issue-42")
	for _, want := range []string{"#42", "acme/widgets", "Fix the flange", "It wobbles.", "kiln/issue-42", `Closes #42`} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
