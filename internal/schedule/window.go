// Package schedule gates dispatch behind cron-defined windows so an
// operator can confine new container launches to, say, working hours.
// In-flight workers are unaffected; only dispatch consults the window.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Window is a recurring dispatch window: a cron activation plus a duration.
// The zero expression means dispatch is always allowed.
type Window struct {
	expr     string
	duration time.Duration
	sched    cron.Schedule
}

// New parses a standard five-field cron expression. An empty expression
// yields an always-open window.
func New(expr string, duration time.Duration) (*Window, error) {
	w := &Window{expr: expr, duration: duration}
	if expr == "" {
		return w, nil
	}
	if duration <= 0 {
		return nil, fmt.Errorf("dispatch window %q needs a positive duration", expr)
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse dispatch window %q: %w", expr, err)
	}
	w.sched = sched
	return w, nil
}

// Open reports whether now falls inside the window. The most recent
// activation at or before now opens the window for its duration.
func (w *Window) Open(now time.Time) bool {
	if w.sched == nil {
		return true
	}
	// The first activation strictly after (now - duration) is the only one
	// whose window can still contain now.
	activation := w.sched.Next(now.Add(-w.duration))
	return !activation.After(now)
}

// String returns the configured expression, for logs and status output.
func (w *Window) String() string {
	if w.expr == "" {
		return "always"
	}
	return fmt.Sprintf("%s for %s", w.expr, w.duration)
}
