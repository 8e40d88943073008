package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/andywolf/agentium/internal/cloud/gcp"
	"github.com/andywolf/agentium/internal/models"
	"github.com/andywolf/agentium/internal/store"
	"github.com/andywolf/agentium/internal/workspace"
)

func newTestServer(t *testing.T) (http.Handler, *store.Store) {
	t.Helper()
	st, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("store.OpenMemory: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	runner := workspace.New(st, nil, nil, nil, nil, workspace.CredentialMount{ContainerUser: "agentium"})
	router := NewRouter(Deps{
		Store:  st,
		Runner: runner,
		Logger: gcp.NewLogger(context.Background(), "httpapi-test"),
	})
	return router, st
}

func seedIssue(t *testing.T, st *store.Store) (*models.Repository, *models.Issue, *models.Agent) {
	t.Helper()
	repo, err := st.GetOrCreateRepository("octo/widgets", "https://github.com/octo/widgets.git", "go")
	if err != nil {
		t.Fatalf("GetOrCreateRepository: %v", err)
	}
	issue, err := st.CreateIssue(repo.ID, 7, "widgets leak memory", "repro steps", nil)
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	ag, err := st.SeedAgent("claude-code", "ghcr.io/example/claude-code", "npm", "claude-3")
	if err != nil {
		t.Fatalf("SeedAgent: %v", err)
	}
	return repo, issue, ag
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSpawnWorkspaceMissingIssueReturnsNotFound(t *testing.T) {
	h, _ := newTestServer(t)
	rec := doJSON(t, h, http.MethodPost, "/workspaces/spawn", spawnRequest{IssueID: 999, AgentID: 1})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestSpawnWorkspaceMissingFieldsReturnsBadRequest(t *testing.T) {
	h, _ := newTestServer(t)
	rec := doJSON(t, h, http.MethodPost, "/workspaces/spawn", spawnRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetWorkspaceNotFound(t *testing.T) {
	h, _ := newTestServer(t)
	rec := doJSON(t, h, http.MethodGet, "/workspaces/123", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDestroyWorkspaceTransitionsToCancelled(t *testing.T) {
	h, st := newTestServer(t)
	_, issue, ag := seedIssue(t, st)
	repo, err := st.GetRepository(issue.RepositoryID)
	if err != nil {
		t.Fatalf("GetRepository: %v", err)
	}
	ws, err := st.CreateWorkspace(ag.ID, repo.ID, issue.ID, "fix/issue-7", 60)
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}

	rec := doJSON(t, h, http.MethodPost, workspacePath(ws.ID, "/destroy"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var got models.Workspace
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.Status != models.WorkspaceStatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
}

func TestWorkspaceLogsReturnsOnlyLinesAfterID(t *testing.T) {
	h, st := newTestServer(t)
	_, issue, ag := seedIssue(t, st)
	repo, _ := st.GetRepository(issue.RepositoryID)
	ws, _ := st.CreateWorkspace(ag.ID, repo.ID, issue.ID, "fix/issue-7", 60)

	if err := st.AppendWorkspaceLog(ws.ID, models.LogStreamStdout, "line one"); err != nil {
		t.Fatalf("AppendWorkspaceLog: %v", err)
	}
	if err := st.AppendWorkspaceLog(ws.ID, models.LogStreamStdout, "line two"); err != nil {
		t.Fatalf("AppendWorkspaceLog: %v", err)
	}

	rec := doJSON(t, h, http.MethodGet, workspacePath(ws.ID, "/logs"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var logs []models.WorkspaceLog
	if err := json.Unmarshal(rec.Body.Bytes(), &logs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("len(logs) = %d, want 2", len(logs))
	}

	rec2 := doJSON(t, h, http.MethodGet, workspacePath(ws.ID, "/logs")+"?after_id="+strconv.FormatInt(logs[0].ID, 10), nil)
	var after []models.WorkspaceLog
	if err := json.Unmarshal(rec2.Body.Bytes(), &after); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(after) != 1 || after[0].Line != "line two" {
		t.Fatalf("after_id filter returned %+v", after)
	}
}

func TestWorkspacePRFallsBackToContribution(t *testing.T) {
	h, st := newTestServer(t)
	_, issue, ag := seedIssue(t, st)
	repo, _ := st.GetRepository(issue.RepositoryID)
	ws, _ := st.CreateWorkspace(ag.ID, repo.ID, issue.ID, "fix/issue-7", 60)

	run, err := st.CreateAgentRun(ws.ID, ag.ID)
	if err != nil {
		t.Fatalf("CreateAgentRun: %v", err)
	}
	prURL := "https://github.com/octo/widgets/pull/99"
	prNumber := 99
	if _, err := st.CreateContribution(run.ID, issue.ID, &prURL, &prNumber, ws.BranchName); err != nil {
		t.Fatalf("CreateContribution: %v", err)
	}

	rec := doJSON(t, h, http.MethodGet, workspacePath(ws.ID, "/pr"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp prResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.PRURL == nil || *resp.PRURL != prURL {
		t.Fatalf("pr_url = %v, want %s", resp.PRURL, prURL)
	}
	if resp.Source == nil || *resp.Source != models.PRSourceContribution {
		t.Fatalf("source = %v, want contribution", resp.Source)
	}
}

func TestConfigSetThenGet(t *testing.T) {
	h, _ := newTestServer(t)
	rec := doJSON(t, h, http.MethodPut, "/config/max_concurrent_workspaces", setConfigRequest{Value: "5"})
	if rec.Code != http.StatusOK {
		t.Fatalf("set status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	rec2 := doJSON(t, h, http.MethodGet, "/config/max_concurrent_workspaces", nil)
	if rec2.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec2.Code)
	}
	var got map[string]string
	if err := json.Unmarshal(rec2.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["value"] != "5" {
		t.Fatalf("value = %q, want 5", got["value"])
	}
}

func workspacePath(id int64, suffix string) string {
	return "/workspaces/" + strconv.FormatInt(id, 10) + suffix
}
