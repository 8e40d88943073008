package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/andywolf/agentium/internal/models"
	"github.com/jmoiron/sqlx"
)

// UpsertRepositoryEnvironment stores (or replaces) the detected toolchain for
// a Repository. Environment detection is re-run on each spawn when none is
// cached, so callers overwrite rather than append.
func (s *Store) UpsertRepositoryEnvironment(env models.RepositoryEnvironment) (*models.RepositoryEnvironment, error) {
	var result models.RepositoryEnvironment
	err := s.withWrite(func(db *sqlx.DB) error {
		now := time.Now().UTC()
		_, err := db.Exec(`INSERT INTO repository_environments
				(repository_id, runtime, package_manager, setup_command, test_command, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(repository_id) DO UPDATE SET
				runtime = excluded.runtime,
				package_manager = excluded.package_manager,
				setup_command = excluded.setup_command,
				test_command = excluded.test_command,
				updated_at = excluded.updated_at`,
			env.RepositoryID, env.Runtime, env.PackageManager, env.SetupCommand, env.TestCommand, now, now)
		if err != nil {
			return err
		}
		return db.Get(&result, `SELECT * FROM repository_environments WHERE repository_id = ?`, env.RepositoryID)
	})
	if err != nil {
		return nil, fmt.Errorf("store: upsert repository environment %d: %w", env.RepositoryID, err)
	}
	return &result, nil
}

// GetRepositoryEnvironment returns the cached toolchain for a Repository, or
// nil if environment detection has not run yet.
func (s *Store) GetRepositoryEnvironment(repositoryID int64) (*models.RepositoryEnvironment, error) {
	var env models.RepositoryEnvironment
	err := s.db.Get(&env, `SELECT * FROM repository_environments WHERE repository_id = ?`, repositoryID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get repository environment %d: %w", repositoryID, err)
	}
	return &env, nil
}
