package workspace

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/andywolf/agentium/internal/agent"
	"github.com/andywolf/agentium/internal/daemonclient"
	"github.com/andywolf/agentium/internal/events"
	"github.com/andywolf/agentium/internal/models"
)

// prURLPattern matches a GitHub pull request URL appearing anywhere in the
// agent's stdout. The last match wins: an agent that opens, then amends, a
// PR may print more than one URL over the course of a run.
var prURLPattern = regexp.MustCompile(`https://github\.com/[\w.-]+/[\w.-]+/pull/(\d+)`)

// RunAgent drives the coding agent's exec session to completion inside an
// already-running Workspace's container, persists every output line, and
// transitions the Workspace to a terminal status once the agent exits. It is
// meant to be called in a goroutine right after Spawn returns.
func (r *Runner) RunAgent(ctx context.Context, workspaceID int64) {
	ws, err := r.store.GetWorkspace(workspaceID)
	if err != nil || ws.ContainerID == nil {
		return
	}
	logger := workspaceLogger(ctx, workspaceID, ws.IssueID)
	defer logger.Close()

	adapterName := adapterNameForAgentID(r.store, ws.AgentID)
	agentAdapter, err := agent.Get(adapterName)
	if err != nil {
		r.crash(workspaceID, ws.IssueID, ws.AgentID, "unknown_agent_adapter", err, logger)
		return
	}

	issue, err := r.store.GetIssue(ws.IssueID)
	if err != nil {
		r.crash(workspaceID, ws.IssueID, ws.AgentID, "load_issue_failed", err, logger)
		return
	}
	repo, err := r.store.GetRepository(ws.RepositoryID)
	if err != nil {
		r.crash(workspaceID, ws.IssueID, ws.AgentID, "load_repository_failed", err, logger)
		return
	}

	prompt := issue.Body
	if issue.AIFixPrompt != nil && *issue.AIFixPrompt != "" {
		prompt = *issue.AIFixPrompt
	}
	token, err := r.provider.InstallationToken(ctx)
	if err != nil {
		logger.LogWarning(fmt.Sprintf("fetch installation token for agent exec: %v", err))
	}
	session := &agent.Session{
		ID:          fmt.Sprintf("%d", workspaceID),
		Repository:  repo.ForkFullName,
		WorkDir:     fmt.Sprintf("/home/%s/repo", r.credential.ContainerUser),
		ActiveTask:  fmt.Sprintf("%d", issue.Number),
		Prompt:      prompt,
		GitHubToken: token,
	}

	cmd := agentAdapter.BuildCommand(session, 1)
	env := flattenEnv(agentAdapter.BuildEnv(session, 1))

	runCtx, cancelRun := context.WithCancel(ctx)
	r.live.register(workspaceID, cancelRun)
	defer r.live.unregister(workspaceID)
	defer cancelRun()

	var prURL string
	var stdoutAll, stderrAll bytes.Buffer
	stdoutBuf := &lineBuffer{onLine: func(line string) {
		r.appendLog(workspaceID, models.LogStreamStdout, line, logger)
		if m := prURLPattern.FindString(line); m != "" {
			prURL = m
		}
	}}
	stderrBuf := &lineBuffer{onLine: func(line string) {
		r.appendLog(workspaceID, models.LogStreamStderr, line, logger)
	}}

	result, execErr := r.daemon.ExecStream(runCtx, *ws.ContainerID, cmd, env, func(f daemonclient.Frame) {
		switch f.Kind {
		case daemonclient.StreamStdout:
			stdoutBuf.write(f.Payload)
			stdoutAll.Write(f.Payload)
		case daemonclient.StreamStderr:
			stderrBuf.write(f.Payload)
			stderrAll.Write(f.Payload)
		}
	})
	stdoutBuf.flush()
	stderrBuf.flush()

	if execErr == nil {
		r.recordEvents(workspaceID, agentAdapter, adapterName, result.ExitCode, stdoutAll.String(), stderrAll.String(), logger)
	}

	if execErr != nil {
		if runCtx.Err() != nil {
			// Cancelled by an operator-initiated Cancel, which already owns
			// the terminal-status transition and teardown; nothing more to do.
			return
		}
		r.crash(workspaceID, ws.IssueID, ws.AgentID, "exec_stream_failed", execErr, logger)
		r.teardown(workspaceID, logger)
		return
	}

	run, err := r.store.GetAgentRunByWorkspace(workspaceID)
	if err == nil && run != nil {
		if compErr := r.store.CompleteAgentRun(run.ID, result.ExitCode, 0, 0, 0); compErr != nil {
			logger.LogWarning(fmt.Sprintf("complete agent run: %v", compErr))
		}
	}

	if result.ExitCode != 0 {
		r.recordFailure(workspaceID, ws.IssueID, ws.AgentID, run, logger)
		cause := fmt.Errorf("agent exited with code %d", result.ExitCode)
		structured := models.StructuredError{Type: "agent_nonzero_exit", Message: cause.Error(), Timestamp: time.Now().UTC()}
		msg := structured.Message
		if err := r.store.CompleteWorkspace(workspaceID, models.WorkspaceStatusContainerCrashed, nil, &msg); err != nil {
			logger.LogWarning(fmt.Sprintf("record container_crashed: %v", err))
		}
		if err := r.store.UpdateIssueStatus(ws.IssueID, models.IssueStatusOpen); err != nil {
			logger.LogWarning(fmt.Sprintf("reopen issue after crash: %v", err))
		}
		r.teardown(workspaceID, logger)
		return
	}

	if err := r.store.RecordAgentRunSuccess(ws.AgentID); err != nil {
		logger.LogWarning(fmt.Sprintf("record agent run success: %v", err))
	}

	var prURLPtr *string
	var prNumber *int
	if prURL != "" {
		prURLPtr = &prURL
		if m := prURLPattern.FindStringSubmatch(prURL); m != nil {
			var n int
			fmt.Sscanf(m[1], "%d", &n)
			prNumber = &n
		}
	}
	if run != nil {
		if _, err := r.store.UpsertContribution(run.ID, ws.IssueID, prURLPtr, prNumber, ws.BranchName); err != nil {
			logger.LogWarning(fmt.Sprintf("upsert contribution: %v", err))
		}
	}
	if err := r.store.CompleteWorkspace(workspaceID, models.WorkspaceStatusCompleted, prURLPtr, nil); err != nil {
		logger.LogWarning(fmt.Sprintf("record completed: %v", err))
	}
	if err := r.store.UpdateIssueStatus(ws.IssueID, models.IssueStatusPROpen); err != nil {
		logger.LogWarning(fmt.Sprintf("transition issue to pr_open: %v", err))
	}

	r.teardown(workspaceID, logger)
}

func (r *Runner) recordFailure(workspaceID, issueID, agentID int64, run *models.AgentRun, logger interface{ LogWarning(string) }) {
	var runID int64
	if run != nil {
		runID = run.ID
	}
	suspendUntil := time.Now().UTC().Add(suspensionDuration)
	if err := r.store.RecordAgentRunFailure(agentID, runID, nil, failureThreshold, suspendUntil); err != nil {
		logger.LogWarning(fmt.Sprintf("record agent run failure: %v", err))
	}
}

func (r *Runner) crash(workspaceID, issueID, agentID int64, errType string, cause error, logger interface{ LogWarning(string) }) {
	structured := models.StructuredError{Type: errType, Message: cause.Error(), Timestamp: time.Now().UTC()}
	msg := structured.Message
	r.recordFailure(workspaceID, issueID, agentID, nil, logger)
	if err := r.store.CompleteWorkspace(workspaceID, models.WorkspaceStatusContainerCrashed, nil, &msg); err != nil {
		logger.LogWarning(fmt.Sprintf("record crash: %v", err))
	}
	if err := r.store.UpdateIssueStatus(issueID, models.IssueStatusOpen); err != nil {
		logger.LogWarning(fmt.Sprintf("reopen issue after crash: %v", err))
	}
}

// recordEvents normalizes the agent's raw output into events.AgentEvent
// entries (via the per-adapter agent.IterationResult.Events the adapter's
// ParseOutput populates) and appends them to a per-workspace JSONL debug
// log. Best-effort: a failure here never fails the workspace itself.
func (r *Runner) recordEvents(workspaceID int64, adapter agent.Agent, adapterName string, exitCode int, stdout, stderr string, logger interface{ LogWarning(string) }) {
	result, err := adapter.ParseOutput(exitCode, stdout, stderr)
	if err != nil || result == nil || len(result.Events) == 0 {
		return
	}
	converted := events.FromIterationResult(result, events.ConvertParams{
		SessionID: fmt.Sprintf("%d", workspaceID),
		Iteration: 1,
		Adapter:   adapterName,
	})
	if len(converted) == 0 {
		return
	}
	dir := filepath.Join(os.TempDir(), fmt.Sprintf("agentium-workspace-%d", workspaceID))
	sink, err := events.NewFileSink(dir)
	if err != nil {
		logger.LogWarning(fmt.Sprintf("open event sink: %v", err))
		return
	}
	defer sink.Close()
	if err := sink.Write(converted); err != nil {
		logger.LogWarning(fmt.Sprintf("write agent events: %v", err))
	}
}

func (r *Runner) appendLog(workspaceID int64, stream models.LogStream, line string, logger interface{ LogWarning(string) }) {
	if err := r.store.AppendWorkspaceLog(workspaceID, stream, line); err != nil {
		logger.LogWarning(fmt.Sprintf("append workspace log: %v", err))
	}
}

func (r *Runner) teardown(workspaceID int64, logger interface{ LogWarning(string) }) {
	ws, err := r.store.GetWorkspace(workspaceID)
	if err != nil || ws.ContainerID == nil {
		return
	}
	time.Sleep(gracePeriod)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := r.daemon.StopAndRemove(ctx, *ws.ContainerID, gracePeriod); err != nil {
		logger.LogWarning(fmt.Sprintf("stop and remove container %s: %v", *ws.ContainerID, err))
	}
	if err := r.store.DestroyWorkspace(workspaceID); err != nil {
		logger.LogWarning(fmt.Sprintf("mark destroyed: %v", err))
	}
}

func flattenEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// lineBuffer accumulates raw stream bytes and invokes onLine once per
// newline-terminated line, matching how the teacher's container logs are
// consumed line-by-line rather than as raw byte chunks.
type lineBuffer struct {
	buf    bytes.Buffer
	onLine func(string)
}

func (l *lineBuffer) write(p []byte) {
	l.buf.Write(p)
	for {
		line, err := l.buf.ReadString('\n')
		if err != nil {
			l.buf.Reset()
			l.buf.WriteString(line)
			return
		}
		l.onLine(line[:len(line)-1])
	}
}

func (l *lineBuffer) flush() {
	if l.buf.Len() > 0 {
		l.onLine(l.buf.String())
		l.buf.Reset()
	}
}
