package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/andywolf/agentium/internal/daemonclient"
	"github.com/andywolf/agentium/internal/models"
	"github.com/andywolf/agentium/internal/store"
	"github.com/andywolf/agentium/internal/workspace"
)

// fakeInspector stands in for the daemon during recovery tests: states maps
// a container id to its simulated inspect result (absent from the map means
// the daemon no longer knows about it), and stopped records every id passed
// to StopAndRemove.
type fakeInspector struct {
	states  map[string]*daemonclient.ContainerState
	stopped []string
}

func (f *fakeInspector) Inspect(ctx context.Context, containerID string) (*daemonclient.ContainerState, error) {
	return f.states[containerID], nil
}

func (f *fakeInspector) StopAndRemove(ctx context.Context, containerID string, gracePeriod time.Duration) error {
	f.stopped = append(f.stopped, containerID)
	return nil
}

func newTestReconciler(t *testing.T, daemon containerInspector) (*Reconciler, *store.Store) {
	t.Helper()
	st, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("store.OpenMemory: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	runner := workspace.New(st, nil, nil, nil, nil, workspace.CredentialMount{ContainerUser: "agentium"})
	return newWithInspector(st, daemon, runner), st
}

func seedWorkspaceAt(t *testing.T, st *store.Store, status models.WorkspaceStatus, withContainer bool) *models.Workspace {
	t.Helper()
	repo, err := st.GetOrCreateRepository("octo/widgets", "https://github.com/octo/widgets.git", "go")
	if err != nil {
		t.Fatalf("GetOrCreateRepository: %v", err)
	}
	issue, err := st.CreateIssue(repo.ID, 42, "widgets leak memory", "repro steps", nil)
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	ag, err := st.SeedAgent("claude-code", "ghcr.io/example/claude-code", "npm", "claude-3")
	if err != nil {
		t.Fatalf("SeedAgent: %v", err)
	}
	ws, err := st.CreateWorkspace(ag.ID, repo.ID, issue.ID, "fix/issue-42", 60)
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	if withContainer {
		if err := st.SetWorkspaceContainer(ws.ID, "ctr-123"); err != nil {
			t.Fatalf("SetWorkspaceContainer: %v", err)
		}
	}
	if err := st.UpdateWorkspaceStatus(ws.ID, status); err != nil {
		t.Fatalf("UpdateWorkspaceStatus: %v", err)
	}
	got, err := st.GetWorkspace(ws.ID)
	if err != nil {
		t.Fatalf("GetWorkspace: %v", err)
	}
	return got
}

func TestRecoverNonTerminalWorkspacesWithoutContainerMarksCrashed(t *testing.T) {
	fake := &fakeInspector{states: map[string]*daemonclient.ContainerState{}}
	r, st := newTestReconciler(t, fake)
	ws := seedWorkspaceAt(t, st, models.WorkspaceStatusBuilding, false)

	if err := r.RecoverNonTerminalWorkspaces(context.Background()); err != nil {
		t.Fatalf("RecoverNonTerminalWorkspaces: %v", err)
	}

	got, err := st.GetWorkspace(ws.ID)
	if err != nil {
		t.Fatalf("GetWorkspace: %v", err)
	}
	if got.Status != models.WorkspaceStatusContainerCrashed {
		t.Errorf("status = %s, want container_crashed", got.Status)
	}
	if len(fake.stopped) != 0 {
		t.Errorf("expected no StopAndRemove calls for a workspace with no container, got %v", fake.stopped)
	}

	issue, err := st.GetIssue(got.IssueID)
	if err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	if issue.Status != models.IssueStatusOpen {
		t.Errorf("issue status = %s, want open", issue.Status)
	}
}

func TestRecoverNonTerminalWorkspacesWithGoneContainerMarksCrashed(t *testing.T) {
	fake := &fakeInspector{states: map[string]*daemonclient.ContainerState{}} // ctr-123 absent
	r, st := newTestReconciler(t, fake)
	ws := seedWorkspaceAt(t, st, models.WorkspaceStatusRunning, true)

	if err := r.RecoverNonTerminalWorkspaces(context.Background()); err != nil {
		t.Fatalf("RecoverNonTerminalWorkspaces: %v", err)
	}

	got, err := st.GetWorkspace(ws.ID)
	if err != nil {
		t.Fatalf("GetWorkspace: %v", err)
	}
	if got.Status != models.WorkspaceStatusContainerCrashed {
		t.Errorf("status = %s, want container_crashed", got.Status)
	}
}

func TestRecoverNonTerminalWorkspacesWithLiveContainerForceDestroys(t *testing.T) {
	fake := &fakeInspector{states: map[string]*daemonclient.ContainerState{"ctr-123": {Running: true}}}
	r, st := newTestReconciler(t, fake)
	ws := seedWorkspaceAt(t, st, models.WorkspaceStatusRunning, true)

	if err := r.RecoverNonTerminalWorkspaces(context.Background()); err != nil {
		t.Fatalf("RecoverNonTerminalWorkspaces: %v", err)
	}

	got, err := st.GetWorkspace(ws.ID)
	if err != nil {
		t.Fatalf("GetWorkspace: %v", err)
	}
	if got.Status != models.WorkspaceStatusDestroyed {
		t.Errorf("status = %s, want destroyed", got.Status)
	}
	if got.DestroyedAt == nil {
		t.Error("expected DestroyedAt to be set")
	}
	if len(fake.stopped) != 1 || fake.stopped[0] != "ctr-123" {
		t.Errorf("expected StopAndRemove(ctr-123), got %v", fake.stopped)
	}

	issue, err := st.GetIssue(got.IssueID)
	if err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	if issue.Status != models.IssueStatusOpen {
		t.Errorf("issue status = %s, want open", issue.Status)
	}
}

func TestRecoverNonTerminalWorkspacesIgnoresTerminalWorkspace(t *testing.T) {
	fake := &fakeInspector{states: map[string]*daemonclient.ContainerState{"ctr-123": {Running: true}}}
	r, st := newTestReconciler(t, fake)
	ws := seedWorkspaceAt(t, st, models.WorkspaceStatusCompleted, true)

	if err := r.RecoverNonTerminalWorkspaces(context.Background()); err != nil {
		t.Fatalf("RecoverNonTerminalWorkspaces: %v", err)
	}

	got, err := st.GetWorkspace(ws.ID)
	if err != nil {
		t.Fatalf("GetWorkspace: %v", err)
	}
	if got.Status != models.WorkspaceStatusCompleted {
		t.Errorf("status changed to %s, want unchanged completed", got.Status)
	}
	if len(fake.stopped) != 0 {
		t.Errorf("expected terminal workspaces to be left untouched, got stopped=%v", fake.stopped)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	r, _ := newTestReconciler(t, &fakeInspector{states: map[string]*daemonclient.ContainerState{}})
	r.Stop()
	r.Stop()
}
