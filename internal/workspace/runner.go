// Package workspace drives a single Workspace through its full lifecycle:
// resolving prior work, synthesizing and building a container recipe,
// starting the container, streaming the coding agent's exec session, and
// tearing the container down once the agent exits or the workspace times
// out or is cancelled.
package workspace

import (
	"context"
	"fmt"
	"time"

	"github.com/andywolf/agentium/internal/agent"
	"github.com/andywolf/agentium/internal/cloud/gcp"
	"github.com/andywolf/agentium/internal/daemonclient"
	"github.com/andywolf/agentium/internal/envdetect"
	"github.com/andywolf/agentium/internal/models"
	"github.com/andywolf/agentium/internal/provider"
	"github.com/andywolf/agentium/internal/recipe"
	"github.com/andywolf/agentium/internal/security"
	"github.com/andywolf/agentium/internal/store"
)

// gracePeriod is how long a container is given to exit cleanly before
// StopAndRemove forces it.
const gracePeriod = 60 * time.Second

// failureThreshold is the number of consecutive container_crashed results
// that suspends an Agent.
const failureThreshold = 3

// suspensionDuration is how long a suspended Agent is skipped for new spawns.
const suspensionDuration = 30 * time.Minute

// defaultBaseBranch is the branch a fresh fix branch is cut from and a PR is
// opened against, absent any per-repository default-branch tracking.
const defaultBaseBranch = "main"

// Runner wires together everything one Workspace's lifecycle touches.
type Runner struct {
	store           *store.Store
	daemon          *daemonclient.Client
	synth           *recipe.Synthesizer
	provider        *provider.Client
	envdetect       *envdetect.Detector
	credential      CredentialMount
	live            *liveRegistry
	branchValidator *security.CommandValidator
}

// CredentialMount describes the read-only bind mounts used to hand the
// provider token and any agent credentials to the container.
type CredentialMount struct {
	HostKnownHostsPath string // bind-mounted read-only into the container's known_hosts
	ContainerUser      string // non-root user created by the synthesized recipe
	HostSSHKeyPath     string // bind-mounted read-only, the operator's git push key
	HostAgentAuthPath  string // bind-mounted read-only, the coding agent's auth/credentials file
	HostAgentConfigDir string // bind-mounted read-only, the coding agent's config directory
}

// New builds a Runner.
func New(st *store.Store, daemon *daemonclient.Client, synth *recipe.Synthesizer, prov *provider.Client, detect *envdetect.Detector, cred CredentialMount) *Runner {
	return &Runner{
		store: st, daemon: daemon, synth: synth, provider: prov, envdetect: detect, credential: cred,
		live:            newLiveRegistry(),
		branchValidator: security.NewCommandValidator(),
	}
}

func workspaceLogger(ctx context.Context, workspaceID, issueID int64) gcp.LoggerInterface {
	return gcp.NewLogger(ctx, fmt.Sprintf("workspace-%d", workspaceID), gcp.WithLabels(map[string]string{
		"workspace_id": fmt.Sprintf("%d", workspaceID),
		"issue_id":     fmt.Sprintf("%d", issueID),
	}))
}

// Spawn resolves prior work, synthesizes and builds a recipe, and starts a
// container for issueID. It performs the synthesizer call and image build
// inline and returns only after the container is running; the agent's exec
// session is driven by a caller-started background call to RunAgent.
func (r *Runner) Spawn(ctx context.Context, issueID, agentID int64, timeoutMinutes float64) (*models.Workspace, error) {
	issue, err := r.store.GetIssue(issueID)
	if err != nil {
		return nil, fmt.Errorf("workspace: load issue %d: %w", issueID, err)
	}
	repo, err := r.store.GetRepository(issue.RepositoryID)
	if err != nil {
		return nil, fmt.Errorf("workspace: load repository %d: %w", issue.RepositoryID, err)
	}

	state, err := r.store.GetAgentState(agentID)
	if err != nil {
		return nil, fmt.Errorf("workspace: load agent state %d: %w", agentID, err)
	}
	if state != nil && state.Suspended && state.SuspendedUntil != nil && time.Now().UTC().Before(*state.SuspendedUntil) {
		return nil, fmt.Errorf("workspace: agent %d is suspended until %s", agentID, state.SuspendedUntil.Format(time.RFC3339))
	}

	logger := workspaceLogger(ctx, 0, issueID)
	defer logger.Close()

	if repo.ForkFullName == "" {
		fork, err := r.provider.EnsureFork(ctx, repo.FullName)
		if err != nil {
			return nil, fmt.Errorf("workspace: ensure fork of %s: %w", repo.FullName, err)
		}
		if err := r.store.SetFork(repo.ID, fork.FullName, fork.CloneURL); err != nil {
			return nil, fmt.Errorf("workspace: persist fork for %s: %w", repo.FullName, err)
		}
		repo.ForkFullName = fork.FullName
		repo.ForkURL = fork.CloneURL
	}

	existing, err := r.provider.FindExistingWork(ctx, repo.FullName, issue.Number)
	if err != nil {
		logger.LogWarning(fmt.Sprintf("find existing work for issue #%d: %v", issue.Number, err))
	}
	branchName := fmt.Sprintf("fix/issue-%d", issue.Number)
	if existing != nil {
		if err := r.branchValidator.ValidateGitRef(existing.Branch); err != nil {
			return nil, fmt.Errorf("workspace: existing branch name for issue #%d rejected: %w", issue.Number, err)
		}
		branchName = existing.Branch
		logger.LogInfo(fmt.Sprintf("reusing existing branch %s for issue #%d", branchName, issue.Number))
	}

	env, err := r.store.GetRepositoryEnvironment(repo.ID)
	if err != nil {
		return nil, fmt.Errorf("workspace: load environment for repository %d: %w", repo.ID, err)
	}
	if env == nil {
		detected, err := r.envdetect.Detect(ctx, repo.ID, repo.OriginURL, "")
		if err != nil {
			logger.LogWarning(fmt.Sprintf("environment detection failed, proceeding without it: %v", err))
		} else {
			env, err = r.store.UpsertRepositoryEnvironment(*detected)
			if err != nil {
				return nil, fmt.Errorf("workspace: persist detected environment: %w", err)
			}
		}
	}

	ws, err := r.store.CreateWorkspace(agentID, repo.ID, issueID, defaultBaseBranch, timeoutMinutes)
	if err != nil {
		return nil, fmt.Errorf("workspace: create workspace row: %w", err)
	}
	if err := r.store.SetWorkspaceBranch(ws.ID, branchName); err != nil {
		return nil, fmt.Errorf("workspace: persist branch name: %w", err)
	}
	if err := r.store.UpdateWorkspaceStatus(ws.ID, models.WorkspaceStatusBuilding); err != nil {
		return nil, fmt.Errorf("workspace: transition to building: %w", err)
	}

	fixPrompt := buildFixPrompt(issue, repo, branchName, defaultBaseBranch, existing != nil)
	if err := r.store.SetIssueFixPrompt(issueID, fixPrompt); err != nil {
		return nil, fmt.Errorf("workspace: persist fix prompt: %w", err)
	}

	if err := r.daemon.Ping(ctx); err != nil {
		return r.failWorkspace(ws.ID, issueID, models.WorkspaceStatusBuildFailed, "daemon_unreachable", err)
	}

	primaryLanguage := repo.Language
	if env != nil && env.Runtime != "" {
		primaryLanguage = env.Runtime
	}

	var imageTag string
	dockerfile, err := r.synth.Synthesize(ctx, recipe.Request{
		RepositoryFullName: repo.FullName,
		OriginURL:          repo.OriginURL,
		ForkURL:            repo.ForkURL,
		PrimaryLanguage:    primaryLanguage,
	}, func(candidate string) error {
		imageTag = fmt.Sprintf("uc-workspace-%d:%d", ws.ID, time.Now().UTC().UnixNano())
		return r.buildImage(ctx, ws.ID, candidate, imageTag, logger)
	})
	if err != nil {
		return r.failWorkspace(ws.ID, issueID, models.WorkspaceStatusBuildFailed, "recipe_synthesis_failed", err)
	}
	if err := r.store.SetWorkspaceRecipe(ws.ID, dockerfile); err != nil {
		return nil, fmt.Errorf("workspace: persist recipe: %w", err)
	}

	if _, err := agent.Get(adapterNameForAgentID(r.store, agentID)); err != nil {
		return r.failWorkspace(ws.ID, issueID, models.WorkspaceStatusBuildFailed, "unknown_agent_adapter", err)
	}

	token, err := r.provider.InstallationToken(ctx)
	if err != nil {
		logger.LogWarning(fmt.Sprintf("fetch installation token for container env: %v", err))
	}

	binds := []string{r.credential.HostKnownHostsPath + ":/etc/ssh/ssh_known_hosts:ro"}
	if r.credential.HostSSHKeyPath != "" {
		binds = append(binds, r.credential.HostSSHKeyPath+fmt.Sprintf(":/home/%s/.ssh/id_ed25519:ro", r.credential.ContainerUser))
	}
	if r.credential.HostAgentAuthPath != "" {
		binds = append(binds, r.credential.HostAgentAuthPath+fmt.Sprintf(":/home/%s/.claude/.credentials.json:ro", r.credential.ContainerUser))
	}
	if r.credential.HostAgentConfigDir != "" {
		binds = append(binds, r.credential.HostAgentConfigDir+fmt.Sprintf(":/home/%s/.claude:ro", r.credential.ContainerUser))
	}

	containerID, err := r.daemon.CreateAndStart(ctx, daemonclient.ContainerSpec{
		Image: imageTag,
		Cmd:   []string{"tail", "-f", "/dev/null"},
		Env: []string{
			"GIT_SSH_COMMAND=ssh -o StrictHostKeyChecking=accept-new",
			"GH_TOKEN=" + token,
			"GITHUB_TOKEN=" + token,
		},
		WorkingDir:  fmt.Sprintf("/home/%s/repo", r.credential.ContainerUser),
		Binds:       binds,
		User:        r.credential.ContainerUser,
		Tty:         true,
		NetworkMode: "bridge",
		Security:    security.DefaultContainerSecurityOptions(),
		Labels:      map[string]string{"workspace_id": fmt.Sprintf("%d", ws.ID), "issue_id": fmt.Sprintf("%d", issueID)},
	})
	if err != nil {
		return r.failWorkspace(ws.ID, issueID, models.WorkspaceStatusContainerCrashed, "container_start_failed", err)
	}

	if err := r.store.SetWorkspaceContainer(ws.ID, containerID); err != nil {
		return nil, fmt.Errorf("workspace: persist container id: %w", err)
	}
	if err := r.store.UpdateWorkspaceStatus(ws.ID, models.WorkspaceStatusRunning); err != nil {
		return nil, fmt.Errorf("workspace: transition to running: %w", err)
	}

	if _, err := r.store.CreateAgentRun(ws.ID, agentID); err != nil {
		return nil, fmt.Errorf("workspace: create agent run: %w", err)
	}
	if err := r.store.UpdateIssueStatus(issueID, models.IssueStatusFixing); err != nil {
		return nil, fmt.Errorf("workspace: transition issue to fixing: %w", err)
	}

	logger.LogInfo(fmt.Sprintf("workspace %d running, container %s", ws.ID, containerID))
	return r.store.GetWorkspace(ws.ID)
}

func (r *Runner) buildImage(ctx context.Context, workspaceID int64, dockerfile, tag string, logger gcp.LoggerInterface) error {
	tarball, err := buildDockerContext(dockerfile)
	if err != nil {
		return fmt.Errorf("workspace: build context tar: %w", err)
	}
	_, err = r.daemon.BuildImage(ctx, tarball, tag, func(evt daemonclient.BuildProgressEvent) {
		if evt.Stream == "" {
			return
		}
		if logErr := r.store.AppendWorkspaceLog(workspaceID, models.LogStreamStdout, evt.Stream); logErr != nil {
			logger.LogWarning(fmt.Sprintf("append build log line: %v", logErr))
		}
	})
	return err
}

// failWorkspace transitions a Workspace that never reached the running state
// to a terminal status and reopens its Issue. status distinguishes a daemon
// or recipe-synthesis failure (build_failed) from a container that failed to
// start (container_crashed) so the taxonomy matches the actual failure site.
func (r *Runner) failWorkspace(workspaceID, issueID int64, status models.WorkspaceStatus, errType string, cause error) (*models.Workspace, error) {
	structured := models.StructuredError{Type: errType, Message: cause.Error(), Timestamp: time.Now().UTC()}
	msg := structured.Message
	if err := r.store.CompleteWorkspace(workspaceID, status, nil, &msg); err != nil {
		return nil, fmt.Errorf("workspace: record %s: %w", status, err)
	}
	if err := r.store.UpdateIssueStatus(issueID, models.IssueStatusOpen); err != nil {
		return nil, fmt.Errorf("workspace: reopen issue after %s: %w", status, err)
	}
	ws, err := r.store.GetWorkspace(workspaceID)
	if err != nil {
		return nil, err
	}
	return ws, fmt.Errorf("workspace: %s: %w", errType, cause)
}

// adapterNameForAgentID resolves the registered adapter name for an Agent
// row, so callers only need to pass the id around.
func adapterNameForAgentID(st *store.Store, agentID int64) string {
	agents, err := st.ListAgents()
	if err != nil {
		return ""
	}
	for _, a := range agents {
		if a.ID == agentID {
			return a.Name
		}
	}
	return ""
}
