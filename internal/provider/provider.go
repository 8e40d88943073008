// Package provider talks to the GitHub provider CLI (gh) to resolve forks,
// existing pull requests, and issue details for a repository, authenticated
// via a GitHub App installation token.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/andywolf/agentium/internal/github"
)

// Client shells out to the gh CLI, injecting a fresh installation token into
// the child process environment on every call.
type Client struct {
	tokens *github.TokenManager
	// execCommand is overridable in tests.
	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
	// envWithTokenFunc is overridable in tests to avoid needing a real TokenManager.
	envWithTokenFunc func() ([]string, error)
}

// New builds a Client backed by tokens for authentication.
func New(tokens *github.TokenManager) *Client {
	c := &Client{
		tokens:      tokens,
		execCommand: exec.CommandContext,
	}
	c.envWithTokenFunc = c.defaultEnvWithToken
	return c
}

func (c *Client) envWithToken() ([]string, error) {
	return c.envWithTokenFunc()
}

// InstallationToken returns a fresh GitHub App installation token, for
// callers (e.g. the workspace runner) that need to hand it to a process
// other than the gh CLI invocations this Client itself makes.
func (c *Client) InstallationToken(ctx context.Context) (string, error) {
	return c.tokens.Token()
}

func (c *Client) defaultEnvWithToken() ([]string, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("provider: get installation token: %w", err)
	}
	return append(envBase(), "GH_TOKEN="+token, "GITHUB_TOKEN="+token), nil
}

// IssueDetail mirrors the fields pulled from `gh issue view --json`.
type IssueDetail struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

// FetchIssue retrieves issue metadata for repoFullName/number.
func (c *Client) FetchIssue(ctx context.Context, repoFullName string, number int) (*IssueDetail, error) {
	env, err := c.envWithToken()
	if err != nil {
		return nil, err
	}
	cmd := c.execCommand(ctx, "gh", "issue", "view", fmt.Sprintf("%d", number),
		"--repo", repoFullName, "--json", "number,title,body,labels")
	cmd.Env = env

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("provider: fetch issue %s#%d: %w", repoFullName, number, err)
	}
	var detail IssueDetail
	if err := json.Unmarshal(out, &detail); err != nil {
		return nil, fmt.Errorf("provider: parse issue %s#%d: %w", repoFullName, number, err)
	}
	return &detail, nil
}

// ForkInfo is the fork repository's identity.
type ForkInfo struct {
	FullName string
	CloneURL string
}

// EnsureFork returns the operator's fork of repoFullName, creating it via
// `gh repo fork` if it doesn't already exist.
func (c *Client) EnsureFork(ctx context.Context, repoFullName string) (*ForkInfo, error) {
	env, err := c.envWithToken()
	if err != nil {
		return nil, err
	}

	viewCmd := c.execCommand(ctx, "gh", "repo", "view", forkTarget(repoFullName), "--json", "nameWithOwner,url")
	viewCmd.Env = env
	if out, err := viewCmd.Output(); err == nil {
		var info struct {
			NameWithOwner string `json:"nameWithOwner"`
			URL           string `json:"url"`
		}
		if jsonErr := json.Unmarshal(out, &info); jsonErr == nil {
			return &ForkInfo{FullName: info.NameWithOwner, CloneURL: info.URL + ".git"}, nil
		}
	}

	forkCmd := c.execCommand(ctx, "gh", "repo", "fork", repoFullName, "--clone=false")
	forkCmd.Env = env
	if out, err := forkCmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("provider: fork %s: %w (%s)", repoFullName, err, string(out))
	}

	viewCmd = c.execCommand(ctx, "gh", "repo", "view", forkTarget(repoFullName), "--json", "nameWithOwner,url")
	viewCmd.Env = env
	out, err := viewCmd.Output()
	if err != nil {
		return nil, fmt.Errorf("provider: view fork of %s after creation: %w", repoFullName, err)
	}
	var info struct {
		NameWithOwner string `json:"nameWithOwner"`
		URL           string `json:"url"`
	}
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("provider: parse fork view of %s: %w", repoFullName, err)
	}
	return &ForkInfo{FullName: info.NameWithOwner, CloneURL: info.URL + ".git"}, nil
}

func forkTarget(repoFullName string) string {
	parts := strings.SplitN(repoFullName, "/", 2)
	if len(parts) != 2 {
		return repoFullName
	}
	return parts[1] // gh resolves the authenticated user's fork by repo name alone
}

// ExistingWork describes a PR or branch already in flight for an issue.
type ExistingWork struct {
	PRNumber int
	PRURL    string
	Branch   string
}

// FindExistingWork looks for an open PR (or, failing that, a remote branch)
// matching the issue-<number> naming convention, so a re-run reuses it
// instead of starting a fresh branch.
func (c *Client) FindExistingWork(ctx context.Context, repoFullName string, issueNumber int) (*ExistingWork, error) {
	env, err := c.envWithToken()
	if err != nil {
		return nil, err
	}
	branchPattern := fmt.Sprintf("/issue-%d-", issueNumber)

	listCmd := c.execCommand(ctx, "gh", "pr", "list", "--repo", repoFullName,
		"--state", "open", "--limit", "200", "--json", "number,url,headRefName")
	listCmd.Env = env

	out, err := listCmd.Output()
	if err != nil {
		return nil, fmt.Errorf("provider: list open PRs for %s: %w", repoFullName, err)
	}
	var prs []struct {
		Number      int    `json:"number"`
		URL         string `json:"url"`
		HeadRefName string `json:"headRefName"`
	}
	if err := json.Unmarshal(out, &prs); err != nil {
		return nil, fmt.Errorf("provider: parse open PR list for %s: %w", repoFullName, err)
	}
	for _, pr := range prs {
		if strings.Contains(pr.HeadRefName, branchPattern) {
			return &ExistingWork{PRNumber: pr.Number, PRURL: pr.URL, Branch: pr.HeadRefName}, nil
		}
	}

	return nil, nil
}

// envBase is overridable in tests to avoid leaking the real process
// environment into exec.Cmd assertions.
var envBase = func() []string { return nil }
