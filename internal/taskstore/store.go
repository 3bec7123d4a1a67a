// Package taskstore provides SQLite-backed persistence for the local task
// queue. Tasks are archived, never deleted: terminal tasks stay queryable.
package taskstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/kilnworks/kiln/internal/domain"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed task persistence
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveTask inserts or updates a task
func (s *Store) SaveTask(task *domain.Task) error {
	_, err := s.db.Exec(`
		INSERT INTO tasks (id, title, description, repo, priority, status, created_at, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			repo = excluded.repo,
			priority = excluded.priority,
			status = excluded.status,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at
	`,
		task.ID,
		task.Title,
		task.Description,
		task.Repo,
		string(task.Priority),
		string(task.Status),
		task.CreatedAt,
		task.StartedAt,
		task.EndedAt,
	)
	return err
}

// GetTask retrieves a task by ID
func (s *Store) GetTask(id string) (*domain.Task, error) {
	row := s.db.QueryRow(`
		SELECT id, title, description, repo, priority, status, created_at, started_at, ended_at
		FROM tasks WHERE id = ?
	`, id)
	return scanTask(row.Scan)
}

// ListOptions specifies filters for listing tasks
type ListOptions struct {
	Repo   string
	Status domain.TaskStatus
}

// ListTasks returns tasks matching the given options, newest first
func (s *Store) ListTasks(opts ListOptions) ([]*domain.Task, error) {
	query := `SELECT id, title, description, repo, priority, status, created_at, started_at, ended_at FROM tasks WHERE 1=1`
	var args []interface{}

	if opts.Repo != "" {
		query += " AND repo = ?"
		args = append(args, opts.Repo)
	}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}

	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

func scanTask(scan func(...any) error) (*domain.Task, error) {
	var task domain.Task
	var description, repo, priority sql.NullString
	var status string
	var startedAt, endedAt sql.NullTime

	err := scan(&task.ID, &task.Title, &description, &repo, &priority, &status, &task.CreatedAt, &startedAt, &endedAt)
	if err != nil {
		return nil, err
	}

	task.Description = description.String
	task.Repo = repo.String
	task.Priority = domain.Priority(priority.String)
	task.Status = domain.TaskStatus(status)
	if startedAt.Valid {
		t := startedAt.Time
		task.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		task.EndedAt = &t
	}

	return &task, nil
}

// CountByStatus returns how many tasks sit in each status.
func (s *Store) CountByStatus() (map[domain.TaskStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.TaskStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.TaskStatus(status)] = n
	}
	return counts, rows.Err()
}

// Transition applies op to the stored task and persists the result. op is
// one of the domain state machine operations.
func (s *Store) Transition(id string, op func(*domain.Task, time.Time) error) error {
	task, err := s.GetTask(id)
	if err != nil {
		return fmt.Errorf("load task %s: %w", id, err)
	}
	if err := op(task, time.Now().UTC()); err != nil {
		return err
	}
	return s.SaveTask(task)
}
