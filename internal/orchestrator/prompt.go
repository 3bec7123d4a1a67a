package orchestrator

import (
	"fmt"
	"strings"

	"github.com/kilnworks/kiln/internal/domain"
)

const promptTemplate = `You are resolving GitHub issue #%d in %s.

Title: %s
%s
Instructions:
1. The repository is already cloned and branch %s is checked out
2. Implement what the issue asks for
3. Run the project's tests and make them pass
4. Commit your work with a descriptive message
5. Push the branch and open a pull request whose body contains "Closes #%d"

Do not ask for clarification. Make reasonable decisions based on the issue content.
`

// BuildPrompt constructs the worker prompt for one issue.
func BuildPrompt(repo string, issue domain.Issue, branch string) string {
	var body string
	if strings.TrimSpace(issue.Body) != "" {
		body = fmt.Sprintf("\nIssue description:\n%s\n", issue.Body)
	}
	return fmt.Sprintf(promptTemplate,
		issue.Number,
		repo,
		issue.Title,
		body,
		branch,
		issue.Number,
	)
}
