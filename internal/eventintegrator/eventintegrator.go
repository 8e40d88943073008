// Package eventintegrator handles inbound GitHub webhooks: verifying the
// HMAC-SHA256 signature, persisting every event for audit, and applying
// pull_request lifecycle transitions to the matching Contribution and Issue.
package eventintegrator

import (
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v57/github"
	"github.com/google/uuid"

	"github.com/andywolf/agentium/internal/cloud/gcp"
	"github.com/andywolf/agentium/internal/models"
	"github.com/andywolf/agentium/internal/security"
	"github.com/andywolf/agentium/internal/store"
)

// Handler processes inbound webhook deliveries against st, verifying each
// request's signature against a per-repository secret resolved by secretFn.
type Handler struct {
	store    *store.Store
	secretFn func() (string, error)
	scrubber *security.Scrubber
}

// New builds a Handler. secretFn resolves the shared webhook secret
// configured for the GitHub App (read from internal/cloud/gcp's
// SecretFetcher in production, a static string in tests).
func New(st *store.Store, secretFn func() (string, error)) *Handler {
	return &Handler{store: st, secretFn: secretFn, scrubber: security.NewScrubber()}
}

// ServeHTTP validates the request's signature, persists the event, and
// applies any pull_request state transition it implies.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	secret, err := h.secretFn()
	if err != nil {
		http.Error(w, "webhook secret not configured", http.StatusInternalServerError)
		return
	}

	payload, err := gh.ValidatePayload(r, []byte(secret))
	if err != nil {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	eventType := gh.WebHookType(r)
	logger := gcp.NewLogger(r.Context(), "eventintegrator", gcp.WithLabels(map[string]string{"event_type": eventType}))

	// GitHub's X-GitHub-Delivery header is a UUID identifying this specific
	// delivery attempt; a retried delivery carries the same value. Validate
	// its shape (malformed/missing headers are simply not deduped) and use
	// it to recognize a redelivery before re-applying a transition twice.
	deliveryID := r.Header.Get("X-GitHub-Delivery")
	if deliveryID != "" {
		if _, err := uuid.Parse(deliveryID); err != nil {
			logger.LogWarning(fmt.Sprintf("non-UUID delivery id %q, skipping dedup", deliveryID))
			deliveryID = ""
		}
	}
	if deliveryID != "" {
		if prior, err := h.store.FindWebhookByDeliveryID(deliveryID); err == nil && prior != nil {
			logger.LogInfo(fmt.Sprintf("duplicate delivery %s already recorded as webhook %d, skipping", deliveryID, prior.ID))
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	event, err := gh.ParseWebHook(eventType, payload)
	if err != nil {
		logger.LogWarning(fmt.Sprintf("unparseable webhook payload: %v; body=%s", err, h.scrubber.Scrub(string(payload))))
		http.Error(w, fmt.Sprintf("unparseable webhook payload: %v", err), http.StatusBadRequest)
		return
	}

	action, contributionID, applyErr := h.apply(eventType, event)
	if applyErr != nil {
		logger.LogError(fmt.Sprintf("apply %s event failed: %v; body=%s", eventType, applyErr, h.scrubber.Scrub(string(payload))))
	}

	webhook, recordErr := h.store.RecordWebhook(eventType, action, payload, contributionID, deliveryID)
	if recordErr != nil {
		http.Error(w, fmt.Sprintf("record webhook: %v", recordErr), http.StatusInternalServerError)
		return
	}
	if applyErr != nil {
		// The event is recorded regardless; a transition failure shouldn't
		// make GitHub retry a delivery whose payload we've already stored.
		if err := h.store.MarkWebhookProcessed(webhook.ID, contributionID); err != nil {
			http.Error(w, fmt.Sprintf("mark webhook processed: %v", err), http.StatusInternalServerError)
			return
		}
		http.Error(w, applyErr.Error(), http.StatusInternalServerError)
		return
	}

	if err := h.store.MarkWebhookProcessed(webhook.ID, contributionID); err != nil {
		http.Error(w, fmt.Sprintf("mark webhook processed: %v", err), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// apply updates the Contribution/Issue rows implied by event, if any. It
// returns the action string (for RecordWebhook) and the matched
// Contribution's id, if one was found.
func (h *Handler) apply(eventType string, event interface{}) (action string, contributionID *int64, err error) {
	prEvent, ok := event.(*gh.PullRequestEvent)
	if eventType != "pull_request" || !ok || prEvent.Action == nil || prEvent.PullRequest == nil {
		return "", nil, nil
	}
	action = *prEvent.Action

	prURL := prEvent.PullRequest.GetHTMLURL()
	prNumber := prEvent.PullRequest.GetNumber()

	contribution, err := h.store.FindContributionByPRURL(prURL)
	if err != nil {
		return action, nil, fmt.Errorf("eventintegrator: find contribution by pr url: %w", err)
	}
	if contribution == nil {
		// The URL hasn't round-tripped into the contributions table yet
		// (e.g. this is the very first "opened" delivery for a PR that was
		// just created); fall back to matching on the repo + PR number.
		repoFullName := prEvent.GetRepo().GetFullName()
		contribution, err = h.store.FindContributionByPRNumber(repoFullName, prNumber)
		if err != nil {
			return action, nil, fmt.Errorf("eventintegrator: find contribution by pr number: %w", err)
		}
	}
	if contribution == nil {
		// No contribution recognizes this PR yet (it hasn't been backfilled,
		// or the PR wasn't opened by this system). Stored above regardless
		// by the caller; nothing further to apply.
		return action, nil, nil
	}
	contributionID = &contribution.ID

	if contribution.PRURL == nil || *contribution.PRURL == "" {
		if err := h.store.SetContributionPR(contribution.ID, prURL, prNumber); err != nil {
			return action, contributionID, fmt.Errorf("eventintegrator: backfill contribution pr: %w", err)
		}
	}

	switch action {
	case "closed":
		if prEvent.PullRequest.GetMerged() {
			if err := h.store.UpdateContributionStatus(contribution.ID, models.ContributionStatusMerged, ""); err != nil {
				return action, contributionID, fmt.Errorf("eventintegrator: mark contribution merged: %w", err)
			}
			if err := h.store.UpdateIssueStatus(contribution.IssueID, models.IssueStatusFixed); err != nil {
				return action, contributionID, fmt.Errorf("eventintegrator: mark issue fixed: %w", err)
			}
		} else {
			if err := h.store.UpdateContributionStatus(contribution.ID, models.ContributionStatusClosed, ""); err != nil {
				return action, contributionID, fmt.Errorf("eventintegrator: mark contribution closed: %w", err)
			}
		}
	case "opened", "reopened":
		if err := h.store.UpdateContributionStatus(contribution.ID, models.ContributionStatusPROpen, ""); err != nil {
			return action, contributionID, fmt.Errorf("eventintegrator: mark contribution pr_open: %w", err)
		}
	}
	return action, contributionID, nil
}
