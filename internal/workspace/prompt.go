package workspace

import (
	"strconv"
	"strings"

	"github.com/andywolf/agentium/internal/models"
	"github.com/andywolf/agentium/internal/template"
)

// freshRunTemplate instructs the agent to create a new branch, push to the
// fork, and open a pull request against the origin (spec.md §4.3's "fresh
// run" sequence).
const freshRunTemplate = `You are fixing issue #{{issue_number}}: {{issue_title}}

Repository: {{repo_full_name}} (origin)
Your fork: {{fork_full_name}}
Base branch: {{base_branch}}

{{issue_body}}

Instructions:
1. Create a new branch named {{branch_name}} from {{base_branch}}.
2. Implement a fix for the issue described above.
3. Run the repository's existing tests if present.
4. Commit your changes with a descriptive message referencing #{{issue_number}}.
5. Push {{branch_name}} to your fork ({{fork_full_name}}).
6. Open a pull request from {{fork_full_name}}:{{branch_name}} against {{repo_full_name}}:{{base_branch}}, linking to issue #{{issue_number}}.
`

// reRunTemplate instructs the agent to update the existing branch and PR
// rather than create a new one (spec.md §4.3's "re-run" sequence).
const reRunTemplate = `This is a RE-RUN: a previous attempt at issue #{{issue_number}} already pushed branch {{branch_name}} to {{fork_full_name}}, and a pull request may already be open against {{repo_full_name}}.

Issue #{{issue_number}}: {{issue_title}}

Repository: {{repo_full_name}} (origin)
Your fork: {{fork_full_name}}
Base branch: {{base_branch}}

{{issue_body}}

Instructions:
1. Fetch upstream ({{repo_full_name}}) and rebase {{branch_name}} onto {{base_branch}}.
2. Reuse the existing branch name {{branch_name}} — do not create a new branch.
3. Address any remaining or newly reported problems with the issue.
4. Run the repository's existing tests if present.
5. Push {{branch_name}} to your fork ({{fork_full_name}}), updating the existing pull request.
6. Do NOT open a new pull request — pushing to {{branch_name}} updates the one already open.
`

// buildFixPrompt renders the fresh-run or re-run prompt template for issue,
// substituting repository/fork/branch context. isRerun selects the template
// per spec.md §4.3's re-run prompt semantics.
func buildFixPrompt(issue *models.Issue, repo *models.Repository, branchName, baseBranch string, isRerun bool) string {
	tmpl := freshRunTemplate
	if isRerun {
		tmpl = reRunTemplate
	}
	vars := map[string]string{
		"issue_number":   strconv.Itoa(issue.Number),
		"issue_title":    issue.Title,
		"issue_body":     strings.TrimSpace(issue.Body),
		"repo_full_name": repo.FullName,
		"fork_full_name": repo.ForkFullName,
		"branch_name":    branchName,
		"base_branch":    baseBranch,
	}
	return template.RenderPrompt(tmpl, vars)
}
