package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/andywolf/agentium/internal/models"
	"github.com/jmoiron/sqlx"
)

// SeedAgent registers an Agent adapter if it doesn't already exist by name,
// returning the existing or newly created row. Called at startup for each
// adapter compiled into the binary (claude-code, codex, aider).
func (s *Store) SeedAgent(name, containerImage, installMethod, defaultModel string) (*models.Agent, error) {
	var agent models.Agent
	err := s.withWrite(func(db *sqlx.DB) error {
		if err := db.Get(&agent, `SELECT * FROM agents WHERE name = ?`, name); err == nil {
			return nil
		} else if err != sql.ErrNoRows {
			return err
		}
		now := time.Now().UTC()
		res, err := db.Exec(`INSERT INTO agents (name, container_image, install_method, default_model, created_at)
			VALUES (?, ?, ?, ?, ?)`, name, containerImage, installMethod, defaultModel, now)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		agent = models.Agent{
			ID: id, Name: name, ContainerImage: containerImage,
			InstallMethod: installMethod, DefaultModel: defaultModel, CreatedAt: now,
		}
		_, err = db.Exec(`INSERT INTO agent_states (agent_id, suspended, consecutive_failures, updated_at)
			VALUES (?, 0, 0, ?)`, id, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store: seed agent %s: %w", name, err)
	}
	return &agent, nil
}

// GetAgentByName returns an Agent by its registered adapter name.
func (s *Store) GetAgentByName(name string) (*models.Agent, error) {
	var agent models.Agent
	err := s.db.Get(&agent, `SELECT * FROM agents WHERE name = ?`, name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get agent %s: %w", name, err)
	}
	return &agent, nil
}

// ListAgents returns every registered Agent adapter.
func (s *Store) ListAgents() ([]models.Agent, error) {
	var agents []models.Agent
	if err := s.db.Select(&agents, `SELECT * FROM agents ORDER BY id`); err != nil {
		return nil, fmt.Errorf("store: list agents: %w", err)
	}
	return agents, nil
}

// GetAgentState returns the suspension state for an Agent.
func (s *Store) GetAgentState(agentID int64) (*models.AgentState, error) {
	var state models.AgentState
	err := s.db.Get(&state, `SELECT * FROM agent_states WHERE agent_id = ?`, agentID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get agent state %d: %w", agentID, err)
	}
	return &state, nil
}

// RecordAgentRunFailure increments the consecutive failure counter for an
// Agent and, once it crosses the supplied threshold, suspends the agent
// until suspendUntil, tagging the triggering run and contribution. Callers
// wire this into the circuit breaker around container_crashed results.
func (s *Store) RecordAgentRunFailure(agentID int64, runID int64, contributionID *int64, threshold int, suspendUntil time.Time) error {
	return s.withWrite(func(db *sqlx.DB) error {
		var state models.AgentState
		if err := db.Get(&state, `SELECT * FROM agent_states WHERE agent_id = ?`, agentID); err != nil {
			return err
		}
		failures := state.ConsecutiveFailures + 1
		suspended := failures >= threshold
		now := time.Now().UTC()
		var until *time.Time
		if suspended {
			until = &suspendUntil
		}
		_, err := db.Exec(`UPDATE agent_states SET
				consecutive_failures = ?,
				suspended = ?,
				suspended_until = ?,
				triggering_agent_run_id = ?,
				triggering_contribution_id = ?,
				updated_at = ?
			WHERE agent_id = ?`,
			failures, suspended, until, runID, contributionID, now, agentID)
		return err
	})
}

// RecordAgentRunSuccess resets the consecutive failure counter and lifts any
// suspension for an Agent.
func (s *Store) RecordAgentRunSuccess(agentID int64) error {
	return s.withWrite(func(db *sqlx.DB) error {
		_, err := db.Exec(`UPDATE agent_states SET
				consecutive_failures = 0,
				suspended = 0,
				suspended_until = NULL,
				updated_at = ?
			WHERE agent_id = ?`, time.Now().UTC(), agentID)
		return err
	})
}
