package workspace

import (
	"context"
	"fmt"
	"time"

	"github.com/andywolf/agentium/internal/models"
)

// Cancel transitions workspaceID to cancelled from any non-terminal status,
// tears down its container if one was started, and reopens the owning
// Issue. Calling Cancel on an already-terminal Workspace is a no-op.
func (r *Runner) Cancel(ctx context.Context, workspaceID int64) error {
	ws, err := r.store.GetWorkspace(workspaceID)
	if err != nil {
		return fmt.Errorf("workspace: load workspace %d: %w", workspaceID, err)
	}
	if ws.Status.Terminal() {
		return nil
	}

	logger := workspaceLogger(ctx, workspaceID, ws.IssueID)
	defer logger.Close()

	if r.live.cancel(workspaceID) {
		logger.LogInfo("interrupted in-flight agent run for cancel")
	}

	if ws.ContainerID != nil {
		if err := r.daemon.StopAndRemove(ctx, *ws.ContainerID, gracePeriod); err != nil {
			logger.LogWarning(fmt.Sprintf("stop and remove container %s during cancel: %v", *ws.ContainerID, err))
		}
	}

	msg := "cancelled by operator"
	if err := r.store.CompleteWorkspace(workspaceID, models.WorkspaceStatusCancelled, nil, &msg); err != nil {
		return fmt.Errorf("workspace: record cancellation: %w", err)
	}
	if err := r.store.DestroyWorkspace(workspaceID); err != nil {
		return fmt.Errorf("workspace: mark destroyed after cancel: %w", err)
	}
	if err := r.store.UpdateIssueStatus(ws.IssueID, models.IssueStatusOpen); err != nil {
		return fmt.Errorf("workspace: reopen issue after cancel: %w", err)
	}
	return nil
}

// SweepTimeouts transitions every running Workspace whose expiry has passed
// into timeout, tearing down its container. Intended to be called
// periodically by the orchestrator daemon and once at startup by the
// reconciler.
func (r *Runner) SweepTimeouts(ctx context.Context) error {
	expired, err := r.store.ListExpiredRunningWorkspaces(time.Now().UTC())
	if err != nil {
		return fmt.Errorf("workspace: list expired workspaces: %w", err)
	}
	for _, ws := range expired {
		logger := workspaceLogger(ctx, ws.ID, ws.IssueID)
		overdue := time.Since(ws.ExpiresAt)

		if ws.ContainerID != nil {
			if err := r.daemon.StopAndRemove(ctx, *ws.ContainerID, gracePeriod); err != nil {
				logger.LogWarning(fmt.Sprintf("stop and remove container %s on timeout: %v", *ws.ContainerID, err))
			}
		}

		structured := models.StructuredError{
			Type:      "timeout",
			Message:   fmt.Sprintf("workspace exceeded its %.0f minute timeout", ws.TimeoutMinutes),
			Details:   map[string]string{"overdue_by": overdue.String()},
			Timestamp: time.Now().UTC(),
		}
		msg := structured.Message
		if err := r.store.CompleteWorkspace(ws.ID, models.WorkspaceStatusTimeout, nil, &msg); err != nil {
			logger.LogWarning(fmt.Sprintf("record timeout: %v", err))
		}
		if err := r.store.DestroyWorkspace(ws.ID); err != nil {
			logger.LogWarning(fmt.Sprintf("mark destroyed after timeout: %v", err))
		}
		if err := r.store.UpdateIssueStatus(ws.IssueID, models.IssueStatusOpen); err != nil {
			logger.LogWarning(fmt.Sprintf("reopen issue after timeout: %v", err))
		}
		logger.Close()
	}
	return nil
}
