package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
)

// GetConfig returns the string value for a config key.
func (s *Store) GetConfig(key string) (string, error) {
	var value string
	err := s.db.Get(&value, `SELECT value FROM config WHERE key = ?`, key)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("store: config key %q not set", key)
	}
	if err != nil {
		return "", fmt.Errorf("store: get config %q: %w", key, err)
	}
	return value, nil
}

// GetConfigInt returns a config value parsed as an int.
func (s *Store) GetConfigInt(key string) (int, error) {
	raw, err := s.GetConfig(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("store: config %q is not an int: %w", key, err)
	}
	return n, nil
}

// GetConfigFloat returns a config value parsed as a float64.
func (s *Store) GetConfigFloat(key string) (float64, error) {
	raw, err := s.GetConfig(key)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("store: config %q is not a float: %w", key, err)
	}
	return f, nil
}

// SetConfig upserts a config key/value pair, used by the Control Surface's
// config endpoints to tune limits without a restart.
func (s *Store) SetConfig(key, value string) error {
	return s.withWrite(func(db *sqlx.DB) error {
		_, err := db.Exec(`INSERT INTO config (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, time.Now().UTC())
		return err
	})
}
