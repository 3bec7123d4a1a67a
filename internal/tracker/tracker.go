// Package tracker abstracts the issue tracker: candidate issues, pull
// request probes, and label transitions.
package tracker

import (
	"context"

	"github.com/kilnworks/kiln/internal/domain"
)

// Tracker is the issue tracker port.
type Tracker interface {
	// ListCandidateIssues returns open issues carrying the candidate label.
	ListCandidateIssues(ctx context.Context, repo, label string) ([]domain.Issue, error)

	// GetIssue fetches one issue's title and body.
	GetIssue(ctx context.Context, repo string, number int) (domain.Issue, error)

	// FindPRForBranch returns the pull request whose head is branch, or nil.
	FindPRForBranch(ctx context.Context, repo, branch string) (*domain.PullRequest, error)

	// CountOpenPRs counts open pull requests in the repository.
	CountOpenPRs(ctx context.Context, repo string) (int, error)

	// TransitionLabel removes and/or adds a label on an issue. Must not
	// fail when the issue is closed or missing.
	TransitionLabel(ctx context.Context, repo string, issue int, remove, add string) error
}
