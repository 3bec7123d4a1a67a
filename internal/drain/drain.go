// Package drain implements the cooperative pause flag. The flag is a
// sentinel file so that an operator (or another process) can toggle it
// without talking to the running loop.
package drain

import (
	"fmt"
	"os"
	"path/filepath"
)

// Signal reports and toggles the drain state persisted at Path.
type Signal struct {
	Path string
}

// New returns a Signal stored inside dir.
func New(dir string) *Signal {
	return &Signal{Path: filepath.Join(dir, "drain")}
}

// Set creates the sentinel. Idempotent.
func (s *Signal) Set() error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("create drain dir: %w", err)
	}
	f, err := os.OpenFile(s.Path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("set drain: %w", err)
	}
	return f.Close()
}

// Clear removes the sentinel. Idempotent, never errors when already unset.
func (s *Signal) Clear() error {
	err := os.Remove(s.Path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear drain: %w", err)
	}
	return nil
}

// IsSet reports whether draining is requested. Read once per cycle before
// any new dispatch; in-flight work is unaffected.
func (s *Signal) IsSet() bool {
	_, err := os.Stat(s.Path)
	return err == nil
}
