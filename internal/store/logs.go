package store

import (
	"fmt"
	"time"

	"github.com/andywolf/agentium/internal/models"
	"github.com/jmoiron/sqlx"
)

// AppendWorkspaceLog appends one log line to a Workspace's execution log.
// Logs are append-only; there is no update or delete path.
func (s *Store) AppendWorkspaceLog(workspaceID int64, stream models.LogStream, line string) error {
	return s.withWrite(func(db *sqlx.DB) error {
		_, err := db.Exec(`INSERT INTO workspace_logs (workspace_id, stream, line, timestamp) VALUES (?, ?, ?, ?)`,
			workspaceID, stream, line, time.Now().UTC())
		return err
	})
}

// ListWorkspaceLogsAfter returns log lines for a Workspace with id > afterID,
// in id order, capped at limit. Used to implement incremental log tailing.
func (s *Store) ListWorkspaceLogsAfter(workspaceID, afterID int64, limit int) ([]models.WorkspaceLog, error) {
	var logs []models.WorkspaceLog
	err := s.db.Select(&logs,
		`SELECT * FROM workspace_logs WHERE workspace_id = ? AND id > ? ORDER BY id LIMIT ?`,
		workspaceID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list workspace logs for %d after %d: %w", workspaceID, afterID, err)
	}
	return logs, nil
}
