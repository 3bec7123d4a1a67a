// Package taskfile decodes operator-authored task files. A task file is a
// small YAML document dropped into the inbox directory.
package taskfile

import (
	"fmt"
	"strings"
	"time"

	"github.com/kilnworks/kiln/internal/domain"
	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of a task request.
type File struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Repo        string `yaml:"repo"`
	Priority    string `yaml:"priority"`
}

// Decode parses a task file.
func Decode(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse task file: %w", err)
	}
	if strings.TrimSpace(f.Title) == "" {
		return File{}, fmt.Errorf("task file has no title")
	}
	switch f.Priority {
	case "", "high", "low":
	default:
		return File{}, fmt.Errorf("unknown priority %q", f.Priority)
	}
	return f, nil
}

// Encode renders a task back to its file form.
func Encode(task *domain.Task) ([]byte, error) {
	return yaml.Marshal(File{
		Title:       task.Title,
		Description: task.Description,
		Repo:        task.Repo,
		Priority:    string(task.Priority),
	})
}

// Task materializes the decoded file as a freshly queued task.
func (f File) Task(id string, now time.Time) *domain.Task {
	return &domain.Task{
		ID:          id,
		Title:       f.Title,
		Description: f.Description,
		Repo:        f.Repo,
		Priority:    domain.Priority(f.Priority),
		Status:      domain.TaskQueued,
		CreatedAt:   now,
	}
}
