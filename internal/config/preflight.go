package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// Check is one preflight probe, named for its error message.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

// Preflight runs every check concurrently and fails fast with the first
// operator-actionable error. Nothing is mutated before preflight passes.
func Preflight(ctx context.Context, checks []Check) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, check := range checks {
		check := check
		g.Go(func() error {
			if err := check.Run(ctx); err != nil {
				return fmt.Errorf("preflight %s: %w", check.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// StateDirWritable probes that the state directory can be created and
// written.
func (c *Config) StateDirWritable(ctx context.Context) error {
	if err := os.MkdirAll(c.General.StateDir, 0o755); err != nil {
		return err
	}
	probe := filepath.Join(c.General.StateDir, ".preflight")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return fmt.Errorf("state dir not writable: %w", err)
	}
	return os.Remove(probe)
}
