package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/andywolf/agentium/internal/models"
)

type createRepositoryRequest struct {
	FullName  string `json:"full_name"`
	OriginURL string `json:"origin_url"`
	Language  string `json:"language"`
}

func (s *server) listRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := s.deps.Store.ListRepositories()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, repos)
}

func (s *server) createRepository(w http.ResponseWriter, r *http.Request) {
	var req createRepositoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.FullName == "" || req.OriginURL == "" {
		writeError(w, http.StatusBadRequest, "full_name and origin_url are required")
		return
	}
	repo, err := s.deps.Store.GetOrCreateRepository(req.FullName, req.OriginURL, req.Language)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, repo)
}

func (s *server) getRepository(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	repo, err := s.deps.Store.GetRepository(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "repository not found")
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

func (s *server) deleteRepository(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := s.deps.Store.DeleteRepository(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createIssueRequest struct {
	RepositoryID int64             `json:"repository_id"`
	Number       int               `json:"number"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	Labels       models.StringSlice `json:"labels"`
}

func (s *server) createIssue(w http.ResponseWriter, r *http.Request) {
	var req createIssueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.RepositoryID == 0 || req.Number == 0 {
		writeError(w, http.StatusBadRequest, "repository_id and number are required")
		return
	}
	issue, err := s.deps.Store.CreateIssue(req.RepositoryID, req.Number, req.Title, req.Body, req.Labels)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, issue)
}

func (s *server) getIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	issue, err := s.deps.Store.GetIssue(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "issue not found")
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

type patchIssueRequest struct {
	Status      *models.IssueStatus `json:"status,omitempty"`
	AIFixPrompt *string             `json:"ai_fix_prompt,omitempty"`
}

func (s *server) patchIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req patchIssueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Status != nil {
		if err := s.deps.Store.UpdateIssueStatus(id, *req.Status); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if req.AIFixPrompt != nil {
		if err := s.deps.Store.SetIssueFixPrompt(id, *req.AIFixPrompt); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	issue, err := s.deps.Store.GetIssue(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "issue not found")
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *server) listAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.deps.Store.ListAgents()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *server) getAgentState(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	state, err := s.deps.Store.GetAgentState(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if state == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"suspended": false})
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *server) getContribution(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	c, err := s.deps.Store.GetContribution(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "contribution not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type patchContributionRequest struct {
	Status  models.ContributionStatus `json:"status"`
	Summary string                    `json:"summary"`
}

func (s *server) patchContribution(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req patchContributionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}
	if err := s.deps.Store.UpdateContributionStatus(id, req.Status, req.Summary); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	c, err := s.deps.Store.GetContribution(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "contribution not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *server) getConfig(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	value, err := s.deps.Store.GetConfig(key)
	if err != nil {
		writeError(w, http.StatusNotFound, "config key not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

type setConfigRequest struct {
	Value string `json:"value"`
}

func (s *server) setConfig(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	var req setConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.deps.Store.SetConfig(key, req.Value); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": req.Value})
}
