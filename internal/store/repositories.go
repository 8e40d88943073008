package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/andywolf/agentium/internal/models"
	"github.com/jmoiron/sqlx"
)

// GetOrCreateRepository returns the Repository row for fullName, creating it
// with empty fork fields if it doesn't exist yet. Fork fields are populated
// lazily by SetFork on first spawn.
func (s *Store) GetOrCreateRepository(fullName, originURL, language string) (*models.Repository, error) {
	var repo models.Repository
	var created models.Repository
	err := s.withWrite(func(db *sqlx.DB) error {
		if err := db.Get(&repo, `SELECT * FROM repositories WHERE full_name = ?`, fullName); err == nil {
			created = repo
			return nil
		} else if err != sql.ErrNoRows {
			return err
		}
		now := time.Now().UTC()
		res, err := db.Exec(`INSERT INTO repositories (full_name, origin_url, language, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)`, fullName, originURL, language, now, now)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		created = models.Repository{
			ID: id, FullName: fullName, OriginURL: originURL, Language: language,
			CreatedAt: now, UpdatedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: get or create repository %s: %w", fullName, err)
	}
	return &created, nil
}

// GetRepository fetches a Repository by id.
func (s *Store) GetRepository(id int64) (*models.Repository, error) {
	var repo models.Repository
	if err := s.db.Get(&repo, `SELECT * FROM repositories WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("store: get repository %d: %w", id, err)
	}
	return &repo, nil
}

// ListRepositories returns every tracked Repository.
func (s *Store) ListRepositories() ([]models.Repository, error) {
	var repos []models.Repository
	if err := s.db.Select(&repos, `SELECT * FROM repositories ORDER BY id`); err != nil {
		return nil, fmt.Errorf("store: list repositories: %w", err)
	}
	return repos, nil
}

// SetFork persists the fork full name/URL discovered on first spawn.
func (s *Store) SetFork(repositoryID int64, forkFullName, forkURL string) error {
	return s.withWrite(func(db *sqlx.DB) error {
		_, err := db.Exec(`UPDATE repositories SET fork_full_name = ?, fork_url = ?, updated_at = ? WHERE id = ?`,
			forkFullName, forkURL, time.Now().UTC(), repositoryID)
		return err
	})
}

// DeleteRepository removes a Repository row (CRUD surface for the Control Surface).
func (s *Store) DeleteRepository(id int64) error {
	return s.withWrite(func(db *sqlx.DB) error {
		_, err := db.Exec(`DELETE FROM repositories WHERE id = ?`, id)
		return err
	})
}
