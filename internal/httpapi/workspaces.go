package httpapi

import (
	"database/sql"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/andywolf/agentium/internal/models"
)

// defaultTimeoutMinutes is used when a spawn request omits timeout_minutes.
const defaultTimeoutMinutes = 45

// logLineLimit bounds a single /logs response; callers page further with
// after_id.
const logLineLimit = 2000

type spawnRequest struct {
	IssueID         int64    `json:"issue_id"`
	AgentID         int64    `json:"agent_id"`
	TimeoutMinutes  *float64 `json:"timeout_minutes,omitempty"`
}

// spawnWorkspace builds and starts a container for an issue, then kicks off
// the agent's exec session in the background. The HTTP response only covers
// synchronous work: recipe synthesis and image build already ran by the
// time this returns, but the agent itself keeps running after the response
// is written.
func (s *server) spawnWorkspace(w http.ResponseWriter, r *http.Request) {
	var req spawnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.IssueID == 0 || req.AgentID == 0 {
		writeError(w, http.StatusBadRequest, "issue_id and agent_id are required")
		return
	}
	timeout := float64(defaultTimeoutMinutes)
	if req.TimeoutMinutes != nil && *req.TimeoutMinutes > 0 {
		timeout = *req.TimeoutMinutes
	}

	ws, err := s.deps.Runner.Spawn(r.Context(), req.IssueID, req.AgentID, timeout)
	if err != nil {
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordError("spawn_workspace")
		}
		if ws != nil {
			// The workspace row was persisted before the failure (recipe
			// synthesis or container start); report it alongside the error
			// rather than hiding a row the caller can already see via GET.
			writeJSON(w, http.StatusInternalServerError, ws)
			return
		}
		writeError(w, spawnErrorStatus(err), err.Error())
		return
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordWorkspaceSpawned(agentLabel(s, req.AgentID))
	}
	writeJSON(w, http.StatusCreated, ws)
}

// spawnErrorStatus classifies a pre-container-creation Spawn failure: a
// missing issue, repository, or a suspended agent are client-correctable
// (4xx); anything past that point (daemon, build, start) is a 5xx.
func spawnErrorStatus(err error) int {
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "load issue"), strings.Contains(msg, "load repository"), strings.Contains(msg, "load environment"):
		return http.StatusNotFound
	case strings.Contains(msg, "suspended"):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func agentLabel(s *server, agentID int64) string {
	agents, err := s.deps.Store.ListAgents()
	if err != nil {
		return strconv.FormatInt(agentID, 10)
	}
	for _, a := range agents {
		if a.ID == agentID {
			return a.Name
		}
	}
	return strconv.FormatInt(agentID, 10)
}

func (s *server) getWorkspace(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	ws, err := s.deps.Store.GetWorkspace(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "workspace not found")
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

// destroyWorkspace tears a workspace down from any non-terminal status.
// The lifecycle's own terminal status is "cancelled" rather than
// "destroyed": destroyed_at is a separate timestamp stamped once the
// container is actually gone (see Runner.Cancel), so an operator-initiated
// destroy here is reported with the richer, already-distinguished status
// instead of overloading "destroyed" to mean both "operator asked" and
// "container is gone".
func (s *server) destroyWorkspace(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := s.deps.Runner.Cancel(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ws, err := s.deps.Store.GetWorkspace(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "workspace not found")
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (s *server) workspaceLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	afterID := int64(0)
	if raw := r.URL.Query().Get("after_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "after_id must be an integer")
			return
		}
		afterID = parsed
	}
	logs, err := s.deps.Store.ListWorkspaceLogsAfter(id, afterID, logLineLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

type prResponse struct {
	PRURL      *string         `json:"pr_url"`
	PRNumber   *int            `json:"pr_number"`
	BranchName string          `json:"branch_name"`
	Source     *models.PRSource `json:"source"`
}

// prURLPattern mirrors the one Runner.RunAgent scans stdout with, so a PR
// URL printed mid-run and never backfilled onto the workspace row can still
// be recovered from its logs.
var prURLPattern = regexp.MustCompile(`https://github\.com/[\w.-]+/[\w.-]+/pull/(\d+)`)

// workspacePR resolves a workspace's PR reference through three tiers:
// the workspace row itself, a grep of its logs, and finally the most
// recent Contribution recorded for the owning issue.
func (s *server) workspacePR(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	ws, err := s.deps.Store.GetWorkspace(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "workspace not found")
		return
	}

	resp := prResponse{BranchName: ws.BranchName}

	if ws.PRURL != nil && *ws.PRURL != "" {
		src := models.PRSourceWorkspace
		resp.PRURL = ws.PRURL
		resp.PRNumber = prNumberFromURL(*ws.PRURL)
		resp.Source = &src
		writeJSON(w, http.StatusOK, resp)
		return
	}

	if logs, err := s.deps.Store.ListWorkspaceLogsAfter(id, 0, logLineLimit); err == nil {
		for i := len(logs) - 1; i >= 0; i-- {
			if m := prURLPattern.FindString(logs[i].Line); m != "" {
				src := models.PRSourceLogs
				resp.PRURL = &m
				resp.PRNumber = prNumberFromURL(m)
				resp.Source = &src
				writeJSON(w, http.StatusOK, resp)
				return
			}
		}
	}

	contributions, err := s.deps.Store.ListContributionsByIssue(ws.IssueID)
	if err == nil {
		for _, c := range contributions {
			if c.PRURL != nil && *c.PRURL != "" {
				src := models.PRSourceContribution
				resp.PRURL = c.PRURL
				resp.PRNumber = c.PRNumber
				resp.Source = &src
				writeJSON(w, http.StatusOK, resp)
				return
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func prNumberFromURL(url string) *int {
	m := prURLPattern.FindStringSubmatch(url)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
