// Package hooks fires operator-supplied lifecycle scripts. Hooks are
// launched detached: the caller never waits for them and cannot observe
// their outcome.
package hooks

import (
	"os"
	"os/exec"
	"path/filepath"
)

// Well-known hook names.
const (
	WorkerStarted   = "on-worker-started"
	WorkerCompleted = "on-worker-completed"
)

// Runner locates hooks in a single directory.
type Runner struct {
	Dir string
}

// New returns a Runner rooted at dir.
func New(dir string) *Runner {
	return &Runner{Dir: dir}
}

// Run starts the named hook if an executable exists for it. Missing or
// non-executable hooks are silently ignored. Environment for the hook must
// be set by the caller via os.Setenv style process environment before the
// call; Run does not parameterize the launch.
func (r *Runner) Run(name string) {
	path := filepath.Join(r.Dir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return
	}

	cmd := exec.Command(path)
	if err := cmd.Start(); err != nil {
		return
	}
	// Detach: reap in the background so the child never zombies, but the
	// outcome stays unobservable.
	go cmd.Wait()
}
