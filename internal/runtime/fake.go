package runtime

import (
	"context"
	"sync"
)

// Fake is an in-memory Runtime for tests.
type Fake struct {
	mu        sync.Mutex
	running   map[string]bool
	exitCodes map[string]int
	Launched  []RunConfig
	LaunchErr error
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{
		running:   make(map[string]bool),
		exitCodes: make(map[string]int),
	}
}

// SetRunning marks a container as alive or stopped.
func (f *Fake) SetRunning(name string, alive bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running[name] = alive
}

// SetExitCode records the exit code reported for a stopped container.
func (f *Fake) SetExitCode(name string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exitCodes[name] = code
}

func (f *Fake) IsRunning(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[name], nil
}

func (f *Fake) Launch(ctx context.Context, cfg RunConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LaunchErr != nil {
		return f.LaunchErr
	}
	f.Launched = append(f.Launched, cfg)
	f.running[cfg.Name] = true
	return nil
}

func (f *Fake) ExitCode(ctx context.Context, name string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	code, ok := f.exitCodes[name]
	if !ok {
		return -1, nil
	}
	return code, nil
}
