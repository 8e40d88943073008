// Package reconcile periodically (and once at startup) brings persisted
// Workspace state back in line with reality: resuming or failing workspaces
// left non-terminal by an unclean shutdown, and sweeping expired ones.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/andywolf/agentium/internal/cloud/gcp"
	"github.com/andywolf/agentium/internal/daemonclient"
	"github.com/andywolf/agentium/internal/models"
	"github.com/andywolf/agentium/internal/store"
	"github.com/andywolf/agentium/internal/workspace"
)

const (
	sweepInterval      = 30 * time.Second
	destroyGracePeriod = 10 * time.Second
)

// containerInspector is the slice of *daemonclient.Client the reconciler
// needs; narrowed to an interface so recovery can be tested without a live
// daemon socket.
type containerInspector interface {
	Inspect(ctx context.Context, containerID string) (*daemonclient.ContainerState, error)
	StopAndRemove(ctx context.Context, containerID string, gracePeriod time.Duration) error
}

// Reconciler runs the periodic timeout sweep and the one-time startup
// recovery of non-terminal Workspaces.
type Reconciler struct {
	store  *store.Store
	daemon containerInspector
	runner *workspace.Runner
	logger gcp.LoggerInterface

	mu     sync.Mutex
	stopCh chan struct{}
}

// New builds a Reconciler. daemon is used at startup to check whether a
// Workspace's container still exists; it may be nil in tests that never
// seed a Workspace with a container.
func New(st *store.Store, daemon *daemonclient.Client, runner *workspace.Runner) *Reconciler {
	r := &Reconciler{
		store:  st,
		runner: runner,
		logger: gcp.NewLogger(context.Background(), "reconciler"),
		stopCh: make(chan struct{}),
	}
	// Assigning a nil *daemonclient.Client straight into the containerInspector
	// field would produce a non-nil interface wrapping a nil pointer, which
	// recoverOne's "r.daemon != nil" guard wouldn't catch.
	if daemon != nil {
		r.daemon = daemon
	}
	return r
}

// newWithInspector builds a Reconciler against an arbitrary containerInspector,
// used by tests to exercise recovery without a live daemon socket.
func newWithInspector(st *store.Store, daemon containerInspector, runner *workspace.Runner) *Reconciler {
	return &Reconciler{
		store:  st,
		daemon: daemon,
		runner: runner,
		logger: gcp.NewLogger(context.Background(), "reconciler"),
		stopCh: make(chan struct{}),
	}
}

// Start runs startup recovery synchronously, then begins the periodic
// timeout sweep loop in a background goroutine.
func (r *Reconciler) Start(ctx context.Context) error {
	if err := r.RecoverNonTerminalWorkspaces(ctx); err != nil {
		return fmt.Errorf("reconcile: startup recovery: %w", err)
	}
	go r.run(ctx)
	return nil
}

// Stop ends the periodic sweep loop.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.stopCh:
		// already stopped
	default:
		close(r.stopCh)
	}
}

func (r *Reconciler) run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.runner.SweepTimeouts(ctx); err != nil {
				r.logger.LogWarning(fmt.Sprintf("timeout sweep failed: %v", err))
			}
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RecoverNonTerminalWorkspaces inspects every Workspace left in a
// non-terminal status by a prior process (crash, restart, deploy) and
// resolves it against the daemon's own view of the world: a workspace whose
// container the daemon no longer knows about is marked container_crashed (it
// never made it to a verifiable terminal state, so the in-flight attempt is
// lost); a workspace whose container still exists is stale — no process is
// left to observe its exec stream or enforce its timeout — and is
// force-destroyed. A workspace that never got as far as creating a container
// is treated the same as a crashed one: there's nothing to reconcile it
// against. Every branch reopens the owning Issue so a fresh spawn can retry.
func (r *Reconciler) RecoverNonTerminalWorkspaces(ctx context.Context) error {
	pending, err := r.store.ListNonTerminalWorkspaces()
	if err != nil {
		return fmt.Errorf("reconcile: list non-terminal workspaces: %w", err)
	}

	for _, ws := range pending {
		if err := r.recoverOne(ctx, ws); err != nil {
			r.logger.LogWarning(fmt.Sprintf("recover workspace %d: %v", ws.ID, err))
		}
	}
	return nil
}

func (r *Reconciler) recoverOne(ctx context.Context, ws models.Workspace) error {
	var state *daemonclient.ContainerState
	if ws.ContainerID != nil && r.daemon != nil {
		inspected, err := r.daemon.Inspect(ctx, *ws.ContainerID)
		if err != nil {
			return fmt.Errorf("inspect container: %w", err)
		}
		state = inspected
	}

	if state == nil {
		// No container was ever created, or the daemon no longer has one by
		// this id: there is nothing left to tear down, and no evidence the
		// agent ever ran to completion.
		reason := "no container was ever started before the orchestrator restarted"
		if ws.ContainerID != nil {
			reason = "container referenced by this workspace no longer exists on the daemon"
		}
		return r.closeOut(ws, models.WorkspaceStatusContainerCrashed, reason)
	}

	// The container still exists but the process that was supervising its
	// exec stream and timeout is gone; force it down rather than leave it
	// running unsupervised.
	if err := r.daemon.StopAndRemove(ctx, *ws.ContainerID, destroyGracePeriod); err != nil {
		r.logger.LogWarning(fmt.Sprintf("force-destroy stale container for workspace %d: %v", ws.ID, err))
	}
	return r.closeOut(ws, models.WorkspaceStatusDestroyed, "orchestrator restarted while the agent was running; stale container force-destroyed")
}

func (r *Reconciler) closeOut(ws models.Workspace, status models.WorkspaceStatus, reason string) error {
	structured := models.StructuredError{Type: "orchestrator_restart", Message: reason, Timestamp: time.Now().UTC()}
	msg := structured.Message
	if err := r.store.CompleteWorkspace(ws.ID, status, nil, &msg); err != nil {
		return fmt.Errorf("complete workspace: %w", err)
	}
	if err := r.store.DestroyWorkspace(ws.ID); err != nil {
		return fmt.Errorf("mark workspace destroyed: %w", err)
	}
	if err := r.store.UpdateIssueStatus(ws.IssueID, models.IssueStatusOpen); err != nil {
		return fmt.Errorf("reopen issue: %w", err)
	}
	r.logger.LogInfo(fmt.Sprintf("recovered workspace %d into %s", ws.ID, status))
	return nil
}
