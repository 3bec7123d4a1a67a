package domain

import (
	"fmt"
	"strings"
)

// Issue is a unit of requested work from the external tracker.
type Issue struct {
	Number int
	Title  string
	Body   string
	Labels []string
}

// PullRequest is the proposed merge of a worker's branch.
type PullRequest struct {
	Number int
	URL    string
}

// BranchForIssue returns the canonical branch name a worker uses for an
// issue. The orchestrator and the PR probe must agree on this name.
func BranchForIssue(prefix string, issue int) string {
	if prefix == "" {
		prefix = "kiln"
	}
	return fmt.Sprintf("%s/issue-%d", prefix, issue)
}

// RepoSlug flattens an owner/name repository reference into a single
// filename-safe component.
func RepoSlug(repo string) string {
	return strings.ReplaceAll(repo, "/", "-")
}
