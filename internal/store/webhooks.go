package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/andywolf/agentium/internal/models"
	"github.com/jmoiron/sqlx"
)

// RecordWebhook persists an inbound provider event before it is processed,
// so delivery is never lost even if processing later fails. deliveryID, if
// non-empty, is the provider's redelivery-tracking id (GitHub's
// X-GitHub-Delivery header) and is enforced unique by the schema so a
// retried delivery is recorded once.
func (s *Store) RecordWebhook(eventType, action string, rawPayload []byte, contributionID *int64, deliveryID string) (*models.Webhook, error) {
	var wh models.Webhook
	var deliveryIDArg interface{}
	var deliveryIDPtr *string
	if deliveryID != "" {
		deliveryIDArg = deliveryID
		deliveryIDPtr = &deliveryID
	}
	err := s.withWrite(func(db *sqlx.DB) error {
		now := time.Now().UTC()
		res, err := db.Exec(`INSERT INTO webhooks (contribution_id, delivery_id, event_type, action, raw_payload, processed, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 0, ?, ?)`, contributionID, deliveryIDArg, eventType, action, rawPayload, now, now)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		wh = models.Webhook{
			ID: id, ContributionID: contributionID, DeliveryID: deliveryIDPtr, EventType: eventType, Action: action,
			RawPayload: rawPayload, CreatedAt: now, UpdatedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: record webhook %s: %w", eventType, err)
	}
	return &wh, nil
}

// FindWebhookByDeliveryID looks up a previously recorded delivery by its
// provider delivery id, returning nil if none matches. Used to recognize a
// GitHub-retried delivery before it is reprocessed.
func (s *Store) FindWebhookByDeliveryID(deliveryID string) (*models.Webhook, error) {
	if deliveryID == "" {
		return nil, nil
	}
	var wh models.Webhook
	err := s.db.Get(&wh, `SELECT * FROM webhooks WHERE delivery_id = ?`, deliveryID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find webhook by delivery id %s: %w", deliveryID, err)
	}
	return &wh, nil
}

// MarkWebhookProcessed flags a Webhook as handled, attaching the resolved
// contribution id if one was not known at ingest time.
func (s *Store) MarkWebhookProcessed(id int64, contributionID *int64) error {
	return s.withWrite(func(db *sqlx.DB) error {
		_, err := db.Exec(`UPDATE webhooks SET processed = 1, contribution_id = COALESCE(?, contribution_id), updated_at = ?
			WHERE id = ?`, contributionID, time.Now().UTC(), id)
		return err
	})
}

// ListUnprocessedWebhooks returns webhooks not yet marked processed, oldest
// first, for the startup reconciliation sweep and retry handling.
func (s *Store) ListUnprocessedWebhooks() ([]models.Webhook, error) {
	var webhooks []models.Webhook
	if err := s.db.Select(&webhooks, `SELECT * FROM webhooks WHERE processed = 0 ORDER BY id`); err != nil {
		return nil, fmt.Errorf("store: list unprocessed webhooks: %w", err)
	}
	return webhooks, nil
}

// ListWebhooksByContribution returns every Webhook tied to a Contribution.
func (s *Store) ListWebhooksByContribution(contributionID int64) ([]models.Webhook, error) {
	var webhooks []models.Webhook
	err := s.db.Select(&webhooks, `SELECT * FROM webhooks WHERE contribution_id = ? ORDER BY id`, contributionID)
	if err != nil {
		return nil, fmt.Errorf("store: list webhooks for contribution %d: %w", contributionID, err)
	}
	return webhooks, nil
}
