package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/andywolf/agentium/internal/models"
	"github.com/jmoiron/sqlx"
)

// CreateIssue inserts a new Issue row in pending status.
func (s *Store) CreateIssue(repositoryID int64, number int, title, body string, labels models.StringSlice) (*models.Issue, error) {
	var issue models.Issue
	err := s.withWrite(func(db *sqlx.DB) error {
		now := time.Now().UTC()
		res, err := db.Exec(`INSERT INTO issues (repository_id, number, title, body, labels, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			repositoryID, number, title, body, labels, models.IssueStatusPending, now, now)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		issue = models.Issue{
			ID: id, RepositoryID: repositoryID, Number: number, Title: title, Body: body,
			Labels: labels, Status: models.IssueStatusPending, CreatedAt: now, UpdatedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: create issue %d/%d: %w", repositoryID, number, err)
	}
	return &issue, nil
}

// GetIssueByRepoAndNumber looks up an Issue by its repository and GitHub issue
// number, the natural key used by webhook and spawn handlers.
func (s *Store) GetIssueByRepoAndNumber(repositoryID int64, number int) (*models.Issue, error) {
	var issue models.Issue
	err := s.db.Get(&issue, `SELECT * FROM issues WHERE repository_id = ? AND number = ?`, repositoryID, number)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get issue %d/%d: %w", repositoryID, number, err)
	}
	return &issue, nil
}

// GetIssue fetches an Issue by id.
func (s *Store) GetIssue(id int64) (*models.Issue, error) {
	var issue models.Issue
	if err := s.db.Get(&issue, `SELECT * FROM issues WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("store: get issue %d: %w", id, err)
	}
	return &issue, nil
}

// ListIssuesByStatus returns issues with the given status, oldest first.
func (s *Store) ListIssuesByStatus(status models.IssueStatus) ([]models.Issue, error) {
	var issues []models.Issue
	if err := s.db.Select(&issues, `SELECT * FROM issues WHERE status = ? ORDER BY id`, status); err != nil {
		return nil, fmt.Errorf("store: list issues by status %s: %w", status, err)
	}
	return issues, nil
}

// UpdateIssueStatus transitions an Issue to a new status.
func (s *Store) UpdateIssueStatus(id int64, status models.IssueStatus) error {
	return s.withWrite(func(db *sqlx.DB) error {
		_, err := db.Exec(`UPDATE issues SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().UTC(), id)
		return err
	})
}

// SetIssueFixPrompt persists the AI fix prompt synthesized for an Issue.
func (s *Store) SetIssueFixPrompt(id int64, prompt string) error {
	return s.withWrite(func(db *sqlx.DB) error {
		_, err := db.Exec(`UPDATE issues SET ai_fix_prompt = ?, updated_at = ? WHERE id = ?`, prompt, time.Now().UTC(), id)
		return err
	})
}
