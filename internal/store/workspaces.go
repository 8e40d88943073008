package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/andywolf/agentium/internal/models"
	"github.com/jmoiron/sqlx"
)

// CreateWorkspace inserts a new Workspace in pending status with its expiry
// computed from timeoutMinutes.
func (s *Store) CreateWorkspace(agentID, repositoryID, issueID int64, baseBranch string, timeoutMinutes float64) (*models.Workspace, error) {
	var ws models.Workspace
	err := s.withWrite(func(db *sqlx.DB) error {
		now := time.Now().UTC()
		expires := now.Add(time.Duration(timeoutMinutes * float64(time.Minute)))
		res, err := db.Exec(`INSERT INTO workspaces
				(agent_id, repository_id, issue_id, status, base_branch, timeout_minutes, expires_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			agentID, repositoryID, issueID, models.WorkspaceStatusPending, baseBranch, timeoutMinutes, expires, now, now)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		ws = models.Workspace{
			ID: id, AgentID: agentID, RepositoryID: repositoryID, IssueID: issueID,
			Status: models.WorkspaceStatusPending, BaseBranch: baseBranch,
			TimeoutMinutes: timeoutMinutes, ExpiresAt: expires, CreatedAt: now, UpdatedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: create workspace for issue %d: %w", issueID, err)
	}
	return &ws, nil
}

// GetWorkspace fetches a Workspace by id.
func (s *Store) GetWorkspace(id int64) (*models.Workspace, error) {
	var ws models.Workspace
	if err := s.db.Get(&ws, `SELECT * FROM workspaces WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("store: get workspace %d: %w", id, err)
	}
	return &ws, nil
}

// ListWorkspacesByIssue returns every Workspace attempted against an Issue,
// most recent first.
func (s *Store) ListWorkspacesByIssue(issueID int64) ([]models.Workspace, error) {
	var workspaces []models.Workspace
	if err := s.db.Select(&workspaces, `SELECT * FROM workspaces WHERE issue_id = ? ORDER BY id DESC`, issueID); err != nil {
		return nil, fmt.Errorf("store: list workspaces for issue %d: %w", issueID, err)
	}
	return workspaces, nil
}

// ListNonTerminalWorkspaces returns every Workspace not yet in a terminal
// status, used by startup reconciliation to resume or fail in-flight work
// left over from an unclean shutdown.
func (s *Store) ListNonTerminalWorkspaces() ([]models.Workspace, error) {
	var workspaces []models.Workspace
	query := `SELECT * FROM workspaces WHERE status NOT IN (?, ?, ?, ?, ?, ?) ORDER BY id`
	err := s.db.Select(&workspaces, query,
		models.WorkspaceStatusCompleted, models.WorkspaceStatusBuildFailed, models.WorkspaceStatusContainerCrashed,
		models.WorkspaceStatusTimeout, models.WorkspaceStatusDestroyed, models.WorkspaceStatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("store: list non-terminal workspaces: %w", err)
	}
	return workspaces, nil
}

// ListExpiredRunningWorkspaces returns workspaces in `running` whose
// expires_at has already passed, for the timeout sweep.
func (s *Store) ListExpiredRunningWorkspaces(asOf time.Time) ([]models.Workspace, error) {
	var workspaces []models.Workspace
	err := s.db.Select(&workspaces,
		`SELECT * FROM workspaces WHERE status = ? AND expires_at <= ? ORDER BY id`,
		models.WorkspaceStatusRunning, asOf)
	if err != nil {
		return nil, fmt.Errorf("store: list expired workspaces: %w", err)
	}
	return workspaces, nil
}

// CountActiveWorkspacesByAgent returns the number of workspaces for an Agent
// currently in `building` or `running`, used to enforce max_concurrent_agents.
func (s *Store) CountActiveWorkspacesByAgent(agentID int64) (int, error) {
	var count int
	err := s.db.Get(&count, `SELECT COUNT(*) FROM workspaces WHERE agent_id = ? AND status IN (?, ?)`,
		agentID, models.WorkspaceStatusBuilding, models.WorkspaceStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("store: count active workspaces for agent %d: %w", agentID, err)
	}
	return count, nil
}

// UpdateWorkspaceStatus transitions a Workspace to a new status.
func (s *Store) UpdateWorkspaceStatus(id int64, status models.WorkspaceStatus) error {
	return s.withWrite(func(db *sqlx.DB) error {
		_, err := db.Exec(`UPDATE workspaces SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().UTC(), id)
		return err
	})
}

// SetWorkspaceContainer records the container id once the daemon client has
// created it.
func (s *Store) SetWorkspaceContainer(id int64, containerID string) error {
	return s.withWrite(func(db *sqlx.DB) error {
		_, err := db.Exec(`UPDATE workspaces SET container_id = ?, updated_at = ? WHERE id = ?`,
			containerID, time.Now().UTC(), id)
		return err
	})
}

// SetWorkspaceBranch records the branch name chosen for a Workspace.
func (s *Store) SetWorkspaceBranch(id int64, branchName string) error {
	return s.withWrite(func(db *sqlx.DB) error {
		_, err := db.Exec(`UPDATE workspaces SET branch_name = ?, updated_at = ? WHERE id = ?`,
			branchName, time.Now().UTC(), id)
		return err
	})
}

// SetWorkspaceRecipe persists the synthesized build recipe for a Workspace.
func (s *Store) SetWorkspaceRecipe(id int64, recipe string) error {
	return s.withWrite(func(db *sqlx.DB) error {
		_, err := db.Exec(`UPDATE workspaces SET recipe = ?, updated_at = ? WHERE id = ?`,
			recipe, time.Now().UTC(), id)
		return err
	})
}

// CompleteWorkspace marks a Workspace finished, optionally with a PR URL,
// transitioning it to a terminal status and stamping destroyed_at when the
// container has already been torn down.
func (s *Store) CompleteWorkspace(id int64, status models.WorkspaceStatus, prURL *string, errMsg *string) error {
	return s.withWrite(func(db *sqlx.DB) error {
		_, err := db.Exec(`UPDATE workspaces SET
				status = ?, pr_url = COALESCE(?, pr_url), error_message = ?, updated_at = ?
			WHERE id = ?`, status, prURL, errMsg, time.Now().UTC(), id)
		return err
	})
}

// DestroyWorkspace stamps destroyed_at once a Workspace's container has been
// removed. It leaves status untouched: CompleteWorkspace already recorded
// the terminal reason (cancelled, timeout, container_crashed, ...), and
// DestroyWorkspace only marks that the container itself is gone.
func (s *Store) DestroyWorkspace(id int64) error {
	return s.withWrite(func(db *sqlx.DB) error {
		now := time.Now().UTC()
		_, err := db.Exec(`UPDATE workspaces SET destroyed_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
		return err
	})
}

// CreateAgentRun inserts the AgentRun row paired 1:1 with a Workspace.
func (s *Store) CreateAgentRun(workspaceID, agentID int64) (*models.AgentRun, error) {
	var run models.AgentRun
	err := s.withWrite(func(db *sqlx.DB) error {
		now := time.Now().UTC()
		res, err := db.Exec(`INSERT INTO agent_runs (workspace_id, agent_id, started_at) VALUES (?, ?, ?)`,
			workspaceID, agentID, now)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		run = models.AgentRun{ID: id, WorkspaceID: workspaceID, AgentID: agentID, StartedAt: now}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: create agent run for workspace %d: %w", workspaceID, err)
	}
	return &run, nil
}

// GetAgentRunByWorkspace returns the AgentRun paired with a Workspace.
func (s *Store) GetAgentRunByWorkspace(workspaceID int64) (*models.AgentRun, error) {
	var run models.AgentRun
	err := s.db.Get(&run, `SELECT * FROM agent_runs WHERE workspace_id = ?`, workspaceID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get agent run for workspace %d: %w", workspaceID, err)
	}
	return &run, nil
}

// CompleteAgentRun records exit code and token/cost usage once a run finishes.
func (s *Store) CompleteAgentRun(id int64, exitCode int, promptTokens, completionTokens int, costUSD float64) error {
	return s.withWrite(func(db *sqlx.DB) error {
		_, err := db.Exec(`UPDATE agent_runs SET
				completed_at = ?, exit_code = ?, prompt_tokens = ?, completion_tokens = ?, cost_usd = ?
			WHERE id = ?`, time.Now().UTC(), exitCode, promptTokens, completionTokens, costUSD, id)
		return err
	})
}
