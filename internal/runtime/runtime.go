// Package runtime abstracts the container substrate workers execute in.
package runtime

import (
	"context"
	"time"
)

// RunConfig describes one worker container launch.
type RunConfig struct {
	Name    string
	Image   string
	Repo    string
	Branch  string
	Prompt  string
	Env     map[string]string
	Timeout time.Duration
	LogPath string
}

// Runtime is the container substrate port. Launch is detached: the loop
// discovers completion only through IsRunning polling, never a blocking
// wait, and probes ExitCode once the container has stopped.
type Runtime interface {
	IsRunning(ctx context.Context, name string) (bool, error)
	Launch(ctx context.Context, cfg RunConfig) error
	ExitCode(ctx context.Context, name string) (int, error)
}
