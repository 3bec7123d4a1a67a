// Package orchestrator drives the polling control loop: observe reality,
// decide, act, persist, audit. One cycle per repository; the loop never
// blocks on a container, only polls.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kilnworks/kiln/internal/config"
	"github.com/kilnworks/kiln/internal/decision"
	"github.com/kilnworks/kiln/internal/domain"
	"github.com/kilnworks/kiln/internal/drain"
	"github.com/kilnworks/kiln/internal/eventlog"
	"github.com/kilnworks/kiln/internal/hooks"
	"github.com/kilnworks/kiln/internal/lock"
	"github.com/kilnworks/kiln/internal/notify"
	"github.com/kilnworks/kiln/internal/runtime"
	"github.com/kilnworks/kiln/internal/schedule"
	"github.com/kilnworks/kiln/internal/store"
	"github.com/kilnworks/kiln/internal/tracker"
)

// Loop composes the ports into one polling control loop.
type Loop struct {
	cfg      *config.Config
	store    store.Store
	runtime  runtime.Runtime
	tracker  tracker.Tracker
	events   *eventlog.Log
	hooks    *hooks.Runner
	drain    *drain.Signal
	window   *schedule.Window
	notifier notify.Notifier

	// now is swappable for tests.
	now func() time.Time
}

// New wires a Loop from its collaborators. A nil notifier disables
// notifications; a nil window means dispatch is always allowed.
func New(cfg *config.Config, st store.Store, rt runtime.Runtime, tr tracker.Tracker,
	events *eventlog.Log, hk *hooks.Runner, dr *drain.Signal, window *schedule.Window,
	notifier notify.Notifier) *Loop {

	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	if window == nil {
		window, _ = schedule.New("", 0)
	}
	return &Loop{
		cfg:      cfg,
		store:    st,
		runtime:  rt,
		tracker:  tr,
		events:   events,
		hooks:    hk,
		drain:    dr,
		window:   window,
		notifier: notifier,
		now:      time.Now,
	}
}

// Run polls until ctx is cancelled, or for exactly one pass when once is
// set. Cancellation is cooperative: the current cycle always completes and
// dispatched containers are never force-terminated.
func (l *Loop) Run(ctx context.Context, once bool) error {
	for {
		for _, repo := range l.cfg.Repos {
			l.RunCycle(ctx, repo)
		}
		if once {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.cfg.PollInterval()):
		}
	}
}

// RunCycle performs one recovery-then-dispatch pass over a repository.
// A held lock means another process owns the repository this cycle; that
// is not an error.
func (l *Loop) RunCycle(ctx context.Context, repo config.RepoConfig) {
	l.events.CycleStart(repo.Name)
	defer l.events.CycleEnd(repo.Name)

	guard, err := lock.Acquire(l.cfg.LocksDir(), repo.Name, false)
	if err != nil {
		var held *lock.HeldError
		if !errors.As(err, &held) {
			l.events.Error(repo.Name, fmt.Sprintf("acquire lock: %v", err))
		}
		return
	}
	defer guard.Release()

	l.recoverWorkers(ctx, repo)
	l.dispatchIssues(ctx, repo)
}

// recoverWorkers finalizes every active record whose container has gone
// away. One bad record never halts the pass.
func (l *Loop) recoverWorkers(ctx context.Context, repo config.RepoConfig) {
	active, err := l.store.ListActive()
	if err != nil {
		l.events.Error(repo.Name, fmt.Sprintf("list active workers: %v", err))
		return
	}

	for _, record := range active {
		if record.Repo != repo.Name {
			continue
		}
		if err := l.finalizeIfStopped(ctx, repo, record); err != nil {
			l.events.Error(repo.Name, fmt.Sprintf("finalize #%d: %v", record.IssueNum, err))
		}
	}
}

func (l *Loop) finalizeIfStopped(ctx context.Context, repo config.RepoConfig, record *domain.WorkerRecord) error {
	alive, err := l.runtime.IsRunning(ctx, record.ContainerName)
	if err != nil {
		return fmt.Errorf("container liveness: %w", err)
	}
	pr, err := l.tracker.FindPRForBranch(ctx, record.Repo, record.Branch)
	if err != nil {
		return fmt.Errorf("pull request probe: %w", err)
	}

	verdict := decision.DecideFinalization(alive, pr != nil)
	if verdict == decision.StillRunning {
		return nil
	}

	var exitCode *int
	if code, err := l.runtime.ExitCode(ctx, record.ContainerName); err == nil {
		exitCode = &code
	}

	status := domain.WorkerFailed
	if verdict == decision.Done {
		status = domain.WorkerDone
		record.PRNum = pr.Number
		record.PRURL = pr.URL
	}
	record.Finalize(status, l.now().UTC(), exitCode)

	if err := l.store.Save(record); err != nil {
		return fmt.Errorf("persist record: %w", err)
	}

	success := status == domain.WorkerDone
	l.events.WorkerResult(record.Repo, []int{record.IssueNum}, success, record.DurationS, record.PRNum, record.PRURL)
	l.hooks.Run(hooks.WorkerCompleted)
	l.transitionLabels(ctx, repo, record.IssueNum, success)
	l.notifier.Send(notify.WorkerResult(record.Repo, record.IssueNum, success, record.PRURL))
	return nil
}

// transitionLabels moves the tracker label from candidate to the outcome
// label when one is configured. Label failures are audit noise, not cycle
// failures.
func (l *Loop) transitionLabels(ctx context.Context, repo config.RepoConfig, issue int, success bool) {
	add := repo.FailedLabel
	if success {
		add = repo.DoneLabel
	}
	if add == "" {
		return
	}
	if err := l.tracker.TransitionLabel(ctx, repo.Name, issue, repo.CandidateLabel, add); err != nil {
		l.events.Error(repo.Name, fmt.Sprintf("label transition #%d: %v", issue, err))
	}
}

// dispatchIssues evaluates every candidate issue and launches workers for
// the ones that need them, within the drain flag, the dispatch window,
// and the concurrency ceilings.
func (l *Loop) dispatchIssues(ctx context.Context, repo config.RepoConfig) {
	issues, err := l.tracker.ListCandidateIssues(ctx, repo.Name, repo.CandidateLabel)
	if err != nil {
		l.events.Error(repo.Name, fmt.Sprintf("list candidate issues: %v", err))
		return
	}
	if len(issues) == 0 {
		return
	}

	openPRs, err := l.tracker.CountOpenPRs(ctx, repo.Name)
	if err != nil {
		l.events.Error(repo.Name, fmt.Sprintf("count open pull requests: %v", err))
		return
	}

	activeCount := l.activeCountFor(repo.Name)

	// Drain and the dispatch window are read once per cycle; already
	// dispatched work is unaffected by either.
	paused := l.drain.IsSet() || !l.window.Open(l.now())

	for _, issue := range issues {
		record, err := l.store.Load(repo.Name, issue.Number)
		if err != nil {
			l.events.Error(repo.Name, fmt.Sprintf("load record #%d: %v", issue.Number, err))
			continue
		}

		branch := domain.BranchForIssue(repo.BranchPrefix, issue.Number)
		pr, err := l.tracker.FindPRForBranch(ctx, repo.Name, branch)
		if err != nil {
			l.events.Error(repo.Name, fmt.Sprintf("pull request probe #%d: %v", issue.Number, err))
			continue
		}

		var status *domain.WorkerStatus
		if record != nil {
			status = &record.Status
		}
		action := decision.DecideIssueAction(status, pr != nil)
		if !action.Dispatch {
			prNum := 0
			if pr != nil {
				prNum = pr.Number
			}
			l.events.IssueSkipped(repo.Name, issue.Number, string(action.Reason), prNum)
			continue
		}

		if paused {
			l.events.BackPressure(repo.Name, openPRs, l.cfg.General.MaxOpenPRs)
			continue
		}
		if activeCount >= l.cfg.General.MaxParallel {
			l.events.BackPressure(repo.Name, openPRs, l.cfg.General.MaxParallel)
			return
		}
		if openPRs >= l.cfg.General.MaxOpenPRs {
			l.events.BackPressure(repo.Name, openPRs, l.cfg.General.MaxOpenPRs)
			return
		}

		if err := l.dispatch(ctx, repo, issue, branch); err != nil {
			l.events.Error(repo.Name, fmt.Sprintf("dispatch #%d: %v", issue.Number, err))
			continue
		}
		activeCount++
	}
}

// dispatch launches a container for one issue and persists its record.
func (l *Loop) dispatch(ctx context.Context, repo config.RepoConfig, issue domain.Issue, branch string) error {
	name := containerName(repo.Name, issue.Number)
	logPath := fmt.Sprintf("%s/%s.log", l.cfg.LogsDir(), name)

	err := l.runtime.Launch(ctx, runtime.RunConfig{
		Name:    name,
		Image:   l.cfg.ImageFor(repo),
		Repo:    repo.Name,
		Branch:  branch,
		Prompt:  BuildPrompt(repo.Name, issue, branch),
		Env:     l.cfg.Container.Env,
		Timeout: l.cfg.ContainerTimeout(),
		LogPath: logPath,
	})
	if err != nil {
		return fmt.Errorf("launch container: %w", err)
	}

	record := &domain.WorkerRecord{
		Repo:          repo.Name,
		IssueNum:      issue.Number,
		IssueTitle:    issue.Title,
		Branch:        branch,
		ContainerName: name,
		Status:        domain.WorkerRunning,
		StartedAt:     l.now().UTC(),
		LogPath:       logPath,
	}
	if err := l.store.Save(record); err != nil {
		return fmt.Errorf("persist record: %w", err)
	}

	l.events.IssueDispatch(repo.Name, []int{issue.Number}, name, false)
	l.hooks.Run(hooks.WorkerStarted)
	return nil
}

func (l *Loop) activeCountFor(repo string) int {
	active, err := l.store.ListActive()
	if err != nil {
		return 0
	}
	count := 0
	for _, record := range active {
		if record.Repo == repo {
			count++
		}
	}
	return count
}

// containerName builds a unique, docker-safe container name. The uuid
// suffix keeps retries of the same issue from colliding with a stopped
// container that has not been cleaned up yet.
func containerName(repo string, issue int) string {
	return fmt.Sprintf("kiln-%s-%d-%s", domain.RepoSlug(repo), issue, uuid.NewString()[:8])
}
