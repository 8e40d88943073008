package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/andywolf/agentium/internal/models"
	"github.com/jmoiron/sqlx"
)

// CreateContribution inserts a Contribution row for a completed AgentRun.
// prURL may be nil: spawn results that finish successfully but have no
// resolvable PR URL yet still mark the Issue pr_open, and the webhook
// integrator backfills the URL once GitHub reports it.
func (s *Store) CreateContribution(agentRunID, issueID int64, prURL *string, prNumber *int, branchName string) (*models.Contribution, error) {
	var c models.Contribution
	err := s.withWrite(func(db *sqlx.DB) error {
		now := time.Now().UTC()
		res, err := db.Exec(`INSERT INTO contributions
				(agent_run_id, issue_id, pr_url, pr_number, branch_name, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			agentRunID, issueID, prURL, prNumber, branchName, models.ContributionStatusPending, now, now)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		c = models.Contribution{
			ID: id, AgentRunID: agentRunID, IssueID: issueID, PRURL: prURL, PRNumber: prNumber,
			BranchName: branchName, Status: models.ContributionStatusPending, CreatedAt: now, UpdatedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: create contribution for issue %d: %w", issueID, err)
	}
	return &c, nil
}

// GetContribution fetches a Contribution by id.
func (s *Store) GetContribution(id int64) (*models.Contribution, error) {
	var c models.Contribution
	if err := s.db.Get(&c, `SELECT * FROM contributions WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("store: get contribution %d: %w", id, err)
	}
	return &c, nil
}

// FindContributionByPRURL looks up the Contribution matching a PR URL
// reported by an inbound pull_request webhook.
func (s *Store) FindContributionByPRURL(prURL string) (*models.Contribution, error) {
	var c models.Contribution
	err := s.db.Get(&c, `SELECT * FROM contributions WHERE pr_url = ?`, prURL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find contribution by pr url %s: %w", prURL, err)
	}
	return &c, nil
}

// FindContributionByPRNumber looks up the Contribution matching a PR number
// within a repository (identified by its origin full name, e.g.
// "octo/widgets"), used as a fallback when a webhook's PR URL hasn't
// round-tripped into the contributions table yet.
func (s *Store) FindContributionByPRNumber(repoFullName string, prNumber int) (*models.Contribution, error) {
	var c models.Contribution
	err := s.db.Get(&c, `SELECT contributions.* FROM contributions
			JOIN issues ON issues.id = contributions.issue_id
			JOIN repositories ON repositories.id = issues.repository_id
			WHERE repositories.full_name = ? AND contributions.pr_number = ?`, repoFullName, prNumber)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find contribution by pr number %d in %s: %w", prNumber, repoFullName, err)
	}
	return &c, nil
}

// UpsertContribution records the outcome of a successful agent run against
// issueID: if a Contribution already exists for the issue (a re-run of a
// previously-fixed or previously-attempted issue), its agent run, PR
// URL/number, branch name, and status are updated in place rather than
// inserting a second row, preserving "at most one contribution per issue".
func (s *Store) UpsertContribution(agentRunID, issueID int64, prURL *string, prNumber *int, branchName string) (*models.Contribution, error) {
	existing, err := s.ListContributionsByIssue(issueID)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return s.CreateContribution(agentRunID, issueID, prURL, prNumber, branchName)
	}

	c := existing[0]
	status := models.ContributionStatusPending
	if prURL != nil && *prURL != "" {
		status = models.ContributionStatusPROpen
	}
	err = s.withWrite(func(db *sqlx.DB) error {
		now := time.Now().UTC()
		_, err := db.Exec(`UPDATE contributions
				SET agent_run_id = ?, pr_url = ?, pr_number = ?, branch_name = ?, status = ?, updated_at = ?
			WHERE id = ?`,
			agentRunID, prURL, prNumber, branchName, status, now, c.ID)
		if err != nil {
			return err
		}
		c.AgentRunID = agentRunID
		c.PRURL = prURL
		c.PRNumber = prNumber
		c.BranchName = branchName
		c.Status = status
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: upsert contribution for issue %d: %w", issueID, err)
	}
	return &c, nil
}

// ListContributionsByIssue returns every Contribution recorded against an
// Issue, most recent first, used by the PR-lookup fallback chain.
func (s *Store) ListContributionsByIssue(issueID int64) ([]models.Contribution, error) {
	var contributions []models.Contribution
	if err := s.db.Select(&contributions, `SELECT * FROM contributions WHERE issue_id = ? ORDER BY id DESC`, issueID); err != nil {
		return nil, fmt.Errorf("store: list contributions for issue %d: %w", issueID, err)
	}
	return contributions, nil
}

// SetContributionPR backfills the PR URL/number on a Contribution once known.
func (s *Store) SetContributionPR(id int64, prURL string, prNumber int) error {
	return s.withWrite(func(db *sqlx.DB) error {
		_, err := db.Exec(`UPDATE contributions SET pr_url = ?, pr_number = ?, updated_at = ? WHERE id = ?`,
			prURL, prNumber, time.Now().UTC(), id)
		return err
	})
}

// UpdateContributionStatus transitions a Contribution (pr_open, merged, closed).
func (s *Store) UpdateContributionStatus(id int64, status models.ContributionStatus, summary string) error {
	return s.withWrite(func(db *sqlx.DB) error {
		_, err := db.Exec(`UPDATE contributions SET status = ?, summary = COALESCE(NULLIF(?, ''), summary), updated_at = ?
			WHERE id = ?`, status, summary, time.Now().UTC(), id)
		return err
	})
}
