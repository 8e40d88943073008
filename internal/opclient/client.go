// Package opclient is a thin HTTP client for the orchestrator's control
// surface, used by cmd/opctl instead of touching the daemon's internals
// directly.
package opclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/andywolf/agentium/internal/models"
)

// Client talks to a running orchestratord's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client against baseURL, e.g. "http://localhost:8080".
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// SpawnRequest mirrors httpapi's spawn request body.
type SpawnRequest struct {
	IssueID        int64    `json:"issue_id"`
	AgentID        int64    `json:"agent_id"`
	TimeoutMinutes *float64 `json:"timeout_minutes,omitempty"`
}

// PRInfo mirrors httpapi's /workspaces/{id}/pr response body.
type PRInfo struct {
	PRURL      *string          `json:"pr_url"`
	PRNumber   *int             `json:"pr_number"`
	BranchName string           `json:"branch_name"`
	Source     *models.PRSource `json:"source"`
}

// Spawn starts a new workspace for an issue/agent pair.
func (c *Client) Spawn(ctx context.Context, req SpawnRequest) (*models.Workspace, error) {
	var ws models.Workspace
	if err := c.do(ctx, http.MethodPost, "/workspaces/spawn", req, &ws); err != nil {
		return nil, err
	}
	return &ws, nil
}

// Cancel destroys a running workspace.
func (c *Client) Cancel(ctx context.Context, workspaceID int64) (*models.Workspace, error) {
	var ws models.Workspace
	path := "/workspaces/" + strconv.FormatInt(workspaceID, 10) + "/destroy"
	if err := c.do(ctx, http.MethodPost, path, nil, &ws); err != nil {
		return nil, err
	}
	return &ws, nil
}

// Status retrieves a workspace's current row.
func (c *Client) Status(ctx context.Context, workspaceID int64) (*models.Workspace, error) {
	var ws models.Workspace
	path := "/workspaces/" + strconv.FormatInt(workspaceID, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, &ws); err != nil {
		return nil, err
	}
	return &ws, nil
}

// Logs retrieves a workspace's log lines after afterID.
func (c *Client) Logs(ctx context.Context, workspaceID, afterID int64) ([]models.WorkspaceLog, error) {
	var logs []models.WorkspaceLog
	path := "/workspaces/" + strconv.FormatInt(workspaceID, 10) + "/logs"
	if afterID > 0 {
		path += "?after_id=" + strconv.FormatInt(afterID, 10)
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// PR resolves a workspace's pull request reference.
func (c *Client) PR(ctx context.Context, workspaceID int64) (*PRInfo, error) {
	var pr PRInfo
	path := "/workspaces/" + strconv.FormatInt(workspaceID, 10) + "/pr"
	if err := c.do(ctx, http.MethodGet, path, nil, &pr); err != nil {
		return nil, err
	}
	return &pr, nil
}

// Retry re-spawns a workspace's issue against the same agent, for use after
// a build_failed or container_crashed terminal status.
func (c *Client) Retry(ctx context.Context, workspaceID int64) (*models.Workspace, error) {
	ws, err := c.Status(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("opclient: load workspace %d: %w", workspaceID, err)
	}
	return c.Spawn(ctx, SpawnRequest{IssueID: ws.IssueID, AgentID: ws.AgentID})
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("opclient: encode request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("opclient: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("opclient: request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("opclient: %s %s returned %d: %s", method, path, resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("opclient: decode response from %s %s: %w", method, path, err)
	}
	return nil
}
