package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kilnworks/kiln/internal/domain"
	"github.com/kilnworks/kiln/internal/taskstore"
)

var (
	taskAddRepo     string
	taskAddPriority string
	taskAddDesc     string
	taskListRepo    string
	taskListStatus  string
)

func init() {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Manage the local task queue",
	}

	addCmd := &cobra.Command{
		Use:   "add TITLE",
		Short: "Queue a new task",
		Args:  cobra.ExactArgs(1),
		RunE:  runTaskAdd,
	}
	addCmd.Flags().StringVar(&taskAddRepo, "repo", "", "repository the task belongs to")
	addCmd.Flags().StringVar(&taskAddPriority, "priority", "", "high or low")
	addCmd.Flags().StringVar(&taskAddDesc, "description", "", "longer task description")
	taskCmd.AddCommand(addCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List queued tasks",
		RunE:  runTaskList,
	}
	listCmd.Flags().StringVar(&taskListRepo, "repo", "", "filter by repository")
	listCmd.Flags().StringVar(&taskListStatus, "status", "", "filter by status")
	taskCmd.AddCommand(listCmd)

	retryCmd := &cobra.Command{
		Use:   "retry ID",
		Short: "Requeue a failed task",
		Args:  cobra.ExactArgs(1),
		RunE:  runTaskRetry,
	}
	taskCmd.AddCommand(retryCmd)

	rootCmd.AddCommand(taskCmd)
}

func openTaskStore() (*taskstore.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.General.StateDir, 0o755); err != nil {
		return nil, err
	}
	return taskstore.New(cfg.DBPath())
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	switch taskAddPriority {
	case "", "high", "low":
	default:
		return fmt.Errorf("priority must be high or low, got %q", taskAddPriority)
	}

	tasks, err := openTaskStore()
	if err != nil {
		return err
	}
	defer tasks.Close()

	task := &domain.Task{
		ID:          uuid.NewString(),
		Title:       args[0],
		Description: taskAddDesc,
		Repo:        taskAddRepo,
		Priority:    domain.Priority(taskAddPriority),
		Status:      domain.TaskQueued,
		CreatedAt:   time.Now().UTC(),
	}
	if err := tasks.SaveTask(task); err != nil {
		return err
	}
	fmt.Printf("Queued %s: %s\n", task.ID, task.Title)
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	tasks, err := openTaskStore()
	if err != nil {
		return err
	}
	defer tasks.Close()

	list, err := tasks.ListTasks(taskstore.ListOptions{
		Repo:   taskListRepo,
		Status: domain.TaskStatus(taskListStatus),
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tREPO\tSTATUS\tPRIORITY\tCREATED")
	for _, task := range list {
		priority := string(task.Priority)
		if priority == "" {
			priority = "-"
		}
		repo := task.Repo
		if repo == "" {
			repo = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			task.ID, task.Title, repo, task.Status, priority,
			humanize.Time(task.CreatedAt))
	}
	return w.Flush()
}

func runTaskRetry(cmd *cobra.Command, args []string) error {
	tasks, err := openTaskStore()
	if err != nil {
		return err
	}
	defer tasks.Close()

	if err := tasks.Transition(args[0], (*domain.Task).Retry); err != nil {
		return err
	}
	fmt.Printf("Requeued %s\n", args[0])
	return nil
}
