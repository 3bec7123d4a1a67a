// Package lock provides per-repository mutual exclusion backed by a PID
// marker file. At most one live process may hold the lock for a repository;
// the guarantee is best-effort (see the check-then-write note on Acquire).
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/kilnworks/kiln/internal/domain"
)

// HeldError means another live process owns the repository lock.
type HeldError struct {
	Repo string
	PID  int
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("repository %s is locked by running process %d", e.Repo, e.PID)
}

// Lock is a held repository lock. Release must run on every exit path.
type Lock struct {
	Repo string
	Path string
}

// forceGrace is how long Acquire waits after asking a holder to terminate.
var forceGrace = 2 * time.Second

// Acquire takes the lock for repo, creating the locks directory if needed.
//
// A marker naming a live process fails with HeldError unless force is set,
// in which case the holder is sent SIGTERM and given a short grace period.
// A marker naming a dead process is stale and is overwritten. Two processes
// can in principle both observe "no live holder" before either writes its
// own pid; the window is accepted in exchange for a human-readable marker.
func Acquire(dir, repo string, force bool) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create locks dir: %w", err)
	}
	path := filepath.Join(dir, domain.RepoSlug(repo)+".lock")

	if data, err := os.ReadFile(path); err == nil {
		pid, perr := strconv.Atoi(strings.TrimSpace(string(data)))
		if perr == nil && pid > 0 && processAlive(pid) {
			if !force {
				return nil, &HeldError{Repo: repo, PID: pid}
			}
			syscall.Kill(pid, syscall.SIGTERM)
			time.Sleep(forceGrace)
		}
		// Dead holder or unreadable marker: stale, overwrite.
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return nil, fmt.Errorf("write lock marker: %w", err)
	}
	return &Lock{Repo: repo, Path: path}, nil
}

// Release deletes the marker file. Safe to call more than once.
func (l *Lock) Release() {
	os.Remove(l.Path)
}

// HolderPID returns the pid recorded in the marker for repo, or 0 when no
// lock exists.
func HolderPID(dir, repo string) int {
	data, err := os.ReadFile(filepath.Join(dir, domain.RepoSlug(repo)+".lock"))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// processAlive probes pid with signal 0, which delivers nothing but reports
// whether the process exists.
func processAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}
