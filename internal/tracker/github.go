package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/kilnworks/kiln/internal/domain"
)

// GitHub talks to GitHub through the gh CLI, which carries authentication
// and retries for us.
type GitHub struct {
	// Binary allows overriding the gh executable, mostly for tests.
	Binary string
}

// NewGitHub returns a GitHub tracker using gh on PATH.
func NewGitHub() *GitHub {
	return &GitHub{Binary: "gh"}
}

type ghIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

type ghPR struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
}

func (g *GitHub) ListCandidateIssues(ctx context.Context, repo, label string) ([]domain.Issue, error) {
	cmd := exec.CommandContext(ctx, g.Binary, "issue", "list",
		"--repo", repo,
		"--label", label,
		"--state", "open",
		"--json", "number,title,body,labels",
		"--limit", "100")

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("gh issue list: %w", err)
	}

	var raw []ghIssue
	if err := json.Unmarshal(output, &raw); err != nil {
		return nil, fmt.Errorf("parse gh output: %w", err)
	}

	issues := make([]domain.Issue, 0, len(raw))
	for _, gi := range raw {
		labels := make([]string, len(gi.Labels))
		for i, l := range gi.Labels {
			labels[i] = l.Name
		}
		issues = append(issues, domain.Issue{
			Number: gi.Number,
			Title:  gi.Title,
			Body:   gi.Body,
			Labels: labels,
		})
	}
	return issues, nil
}

func (g *GitHub) GetIssue(ctx context.Context, repo string, number int) (domain.Issue, error) {
	cmd := exec.CommandContext(ctx, g.Binary, "issue", "view", fmt.Sprintf("%d", number),
		"--repo", repo,
		"--json", "number,title,body")

	output, err := cmd.Output()
	if err != nil {
		return domain.Issue{}, fmt.Errorf("gh issue view %d: %w", number, err)
	}

	var gi ghIssue
	if err := json.Unmarshal(output, &gi); err != nil {
		return domain.Issue{}, fmt.Errorf("parse gh output: %w", err)
	}
	return domain.Issue{Number: gi.Number, Title: gi.Title, Body: gi.Body}, nil
}

func (g *GitHub) FindPRForBranch(ctx context.Context, repo, branch string) (*domain.PullRequest, error) {
	cmd := exec.CommandContext(ctx, g.Binary, "pr", "list",
		"--repo", repo,
		"--head", branch,
		"--state", "all",
		"--json", "number,url",
		"--limit", "1")

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("gh pr list: %w", err)
	}

	var prs []ghPR
	if err := json.Unmarshal(output, &prs); err != nil {
		return nil, fmt.Errorf("parse gh output: %w", err)
	}
	if len(prs) == 0 {
		return nil, nil
	}
	return &domain.PullRequest{Number: prs[0].Number, URL: prs[0].URL}, nil
}

func (g *GitHub) CountOpenPRs(ctx context.Context, repo string) (int, error) {
	cmd := exec.CommandContext(ctx, g.Binary, "pr", "list",
		"--repo", repo,
		"--state", "open",
		"--json", "number",
		"--limit", "200")

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("gh pr list: %w", err)
	}

	var prs []ghPR
	if err := json.Unmarshal(output, &prs); err != nil {
		return 0, fmt.Errorf("parse gh output: %w", err)
	}
	return len(prs), nil
}

// TransitionLabel edits issue labels. Closed or missing issues are treated
// as success so finalization never trips over cleaned-up issues.
func (g *GitHub) TransitionLabel(ctx context.Context, repo string, issue int, remove, add string) error {
	args := []string{"issue", "edit", fmt.Sprintf("%d", issue), "--repo", repo}
	if remove != "" {
		args = append(args, "--remove-label", remove)
	}
	if add != "" {
		args = append(args, "--add-label", add)
	}
	if remove == "" && add == "" {
		return nil
	}

	output, err := exec.CommandContext(ctx, g.Binary, args...).CombinedOutput()
	if err != nil {
		msg := strings.ToLower(string(output))
		if strings.Contains(msg, "not found") || strings.Contains(msg, "could not resolve") {
			return nil
		}
		return fmt.Errorf("gh issue edit %d: %w", issue, err)
	}
	return nil
}

// AuthCheck verifies gh credentials. Used by preflight.
func (g *GitHub) AuthCheck(ctx context.Context) error {
	if output, err := exec.CommandContext(ctx, g.Binary, "auth", "status").CombinedOutput(); err != nil {
		return fmt.Errorf("gh not authenticated (run `gh auth login`): %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
