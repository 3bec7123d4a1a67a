package tracker

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilnworks/kiln/internal/domain"
)

// Fake is an in-memory Tracker for tests.
type Fake struct {
	mu          sync.Mutex
	Issues      map[string][]domain.Issue      // repo -> candidates
	PRs         map[string]*domain.PullRequest // repo#branch -> PR
	OpenPRs     map[string]int                 // repo -> open PR count
	Transitions []string                       // "repo#issue:-remove+add"
	QueryErr    error
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{
		Issues:  make(map[string][]domain.Issue),
		PRs:     make(map[string]*domain.PullRequest),
		OpenPRs: make(map[string]int),
	}
}

// SetPR registers (or clears, with nil) the PR for a branch.
func (f *Fake) SetPR(repo, branch string, pr *domain.PullRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pr == nil {
		delete(f.PRs, repo+"#"+branch)
		return
	}
	f.PRs[repo+"#"+branch] = pr
}

func (f *Fake) ListCandidateIssues(ctx context.Context, repo, label string) ([]domain.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.QueryErr != nil {
		return nil, f.QueryErr
	}
	return f.Issues[repo], nil
}

func (f *Fake) GetIssue(ctx context.Context, repo string, number int) (domain.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, issue := range f.Issues[repo] {
		if issue.Number == number {
			return issue, nil
		}
	}
	return domain.Issue{Number: number}, nil
}

func (f *Fake) FindPRForBranch(ctx context.Context, repo, branch string) (*domain.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.QueryErr != nil {
		return nil, f.QueryErr
	}
	return f.PRs[repo+"#"+branch], nil
}

func (f *Fake) CountOpenPRs(ctx context.Context, repo string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.OpenPRs[repo], nil
}

func (f *Fake) TransitionLabel(ctx context.Context, repo string, issue int, remove, add string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Transitions = append(f.Transitions, fmt.Sprintf("%s#%d:-%s+%s", repo, issue, remove, add))
	return nil
}
