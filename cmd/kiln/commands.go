package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kilnworks/kiln/internal/config"
	"github.com/kilnworks/kiln/internal/drain"
	"github.com/kilnworks/kiln/internal/eventlog"
	"github.com/kilnworks/kiln/internal/hooks"
	"github.com/kilnworks/kiln/internal/lock"
	"github.com/kilnworks/kiln/internal/notify"
	"github.com/kilnworks/kiln/internal/observer"
	"github.com/kilnworks/kiln/internal/orchestrator"
	"github.com/kilnworks/kiln/internal/runtime"
	"github.com/kilnworks/kiln/internal/schedule"
	"github.com/kilnworks/kiln/internal/store"
	"github.com/kilnworks/kiln/internal/taskstore"
	"github.com/kilnworks/kiln/internal/tracker"
)

var (
	runOnce   bool
	runRepo   string
	lockForce bool
)

func init() {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the orchestration loop",
		RunE:  runRun,
	}
	runCmd.Flags().BoolVar(&runOnce, "once", false, "run a single cycle and exit")
	runCmd.Flags().StringVar(&runRepo, "repo", "", "restrict to one configured repository")
	rootCmd.AddCommand(runCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show worker and queue status",
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	drainCmd := &cobra.Command{
		Use:       "drain on|off|status",
		Short:     "Control the drain flag (pause new dispatches)",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off", "status"},
		RunE:      runDrain,
	}
	rootCmd.AddCommand(drainCmd)

	lockCmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspect and release repository locks",
	}
	releaseCmd := &cobra.Command{
		Use:   "release OWNER/REPO",
		Short: "Release a repository lock",
		Args:  cobra.ExactArgs(1),
		RunE:  runLockRelease,
	}
	releaseCmd.Flags().BoolVar(&lockForce, "force", false, "terminate a live holder before releasing")
	lockCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(lockCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if runRepo != "" {
		var kept []config.RepoConfig
		for _, repo := range cfg.Repos {
			if repo.Name == runRepo {
				kept = append(kept, repo)
			}
		}
		if len(kept) == 0 {
			return fmt.Errorf("repository %q is not configured", runRepo)
		}
		cfg.Repos = kept
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	docker := runtime.NewDocker()
	github := tracker.NewGitHub()
	if err := config.Preflight(ctx, []config.Check{
		{Name: "state dir", Run: cfg.StateDirWritable},
		{Name: "docker", Run: docker.Available},
		{Name: "github auth", Run: github.AuthCheck},
	}); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.LogsDir(), 0o755); err != nil {
		return err
	}

	var window *schedule.Window
	if cfg.Window.Cron != "" {
		window, err = schedule.New(cfg.Window.Cron, cfg.WindowDuration())
		if err != nil {
			return fmt.Errorf("dispatch window: %w", err)
		}
	}

	var notifiers []notify.Notifier
	if cfg.Notifications.Desktop {
		notifiers = append(notifiers, notify.NewDesktopNotifier(true))
	}
	if cfg.Notifications.SlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.Notifications.SlackWebhook))
	}

	tasks, err := taskstore.New(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	defer tasks.Close()

	watcher, err := observer.NewInboxWatcher(cfg.InboxDir(), tasks)
	if err != nil {
		return fmt.Errorf("watch inbox: %w", err)
	}
	watcher.OnError = func(path string, err error) {
		fmt.Fprintf(os.Stderr, "inbox: %s: %v\n", path, err)
	}
	watcher.Start(ctx)
	defer watcher.Stop()

	loop := orchestrator.New(cfg,
		store.NewFileStore(cfg.RecordsDir()),
		docker,
		github,
		eventlog.New(cfg.EventLogPath()),
		hooks.New(cfg.HooksDir()),
		drain.New(cfg.General.StateDir),
		window,
		notify.NewMultiNotifier(notifiers...),
	)

	if runOnce {
		fmt.Println("Running a single cycle")
	} else {
		fmt.Printf("Polling every %s across %d repositories\n", cfg.PollInterval(), len(cfg.Repos))
	}
	return loop.Run(ctx, runOnce)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	records, err := store.NewFileStore(cfg.RecordsDir()).ListAll()
	if err != nil {
		return err
	}

	if drain.New(cfg.General.StateDir).IsSet() {
		fmt.Println("Draining: new dispatches are paused")
	}

	active := 0
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REPO\tISSUE\tSTATUS\tSTARTED\tPR")
	for _, record := range records {
		if record.Status.IsActive() {
			active++
		}
		pr := "-"
		if record.PRNum != 0 {
			pr = fmt.Sprintf("#%d", record.PRNum)
		}
		fmt.Fprintf(w, "%s\t#%d\t%s\t%s\t%s\n",
			record.Repo, record.IssueNum, record.Status,
			humanize.Time(record.StartedAt), pr)
	}
	w.Flush()
	fmt.Printf("%d workers recorded, %d active\n", len(records), active)

	tasks, err := taskstore.New(cfg.DBPath())
	if err != nil {
		// The queue is optional; a missing database just means no tasks.
		return nil
	}
	defer tasks.Close()
	counts, err := tasks.CountByStatus()
	if err != nil {
		return err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	if total > 0 {
		fmt.Printf("Tasks: %d total | %d queued | %d running | %d done | %d failed\n",
			total, counts["queued"], counts["running"], counts["done"], counts["failed"])
	}
	return nil
}

func runDrain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sig := drain.New(cfg.General.StateDir)

	switch args[0] {
	case "on":
		if err := sig.Set(); err != nil {
			return err
		}
		fmt.Println("Drain enabled: running workers finish, nothing new dispatches")
	case "off":
		if err := sig.Clear(); err != nil {
			return err
		}
		fmt.Println("Drain cleared")
	case "status":
		if sig.IsSet() {
			fmt.Println("draining")
		} else {
			fmt.Println("active")
		}
	default:
		return fmt.Errorf("unknown drain action %q", args[0])
	}
	return nil
}

func runLockRelease(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	repo := args[0]

	pid := lock.HolderPID(cfg.LocksDir(), repo)
	if pid == 0 {
		fmt.Printf("No lock held for %s\n", repo)
		return nil
	}

	guard, err := lock.Acquire(cfg.LocksDir(), repo, lockForce)
	if err != nil {
		return fmt.Errorf("lock held by live process %d (use --force to terminate it)", pid)
	}
	guard.Release()
	fmt.Printf("Released lock for %s (was held by %d)\n", repo, pid)
	return nil
}
