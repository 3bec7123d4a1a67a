package notify

import "fmt"

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	Repo    string // Optional repository reference
	Issue   int    // Optional issue reference
	PRURL   string // Optional PR URL
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers
func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }

// WorkerResult builds the notification for a finalized worker.
func WorkerResult(repo string, issue int, success bool, prURL string) Notification {
	n := Notification{
		Repo:  repo,
		Issue: issue,
		PRURL: prURL,
	}
	if success {
		n.Type = NotifySuccess
		n.Title = fmt.Sprintf("Worker finished: %s #%d", repo, issue)
		n.Message = "Pull request ready for review"
		if prURL != "" {
			n.Message = "Pull request ready for review: " + prURL
		}
	} else {
		n.Type = NotifyError
		n.Title = fmt.Sprintf("Worker failed: %s #%d", repo, issue)
		n.Message = "Container exited without opening a pull request"
	}
	return n
}
