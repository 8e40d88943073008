package daemonclient

import (
	"context"
	"net/http"
	"testing"
)

func TestPingSucceedsAgainstHealthyDaemon(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestPingTripsBreakerAfterConsecutiveFailures(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	var lastErr error
	for i := 0; i < 5; i++ {
		lastErr = client.Ping(context.Background())
	}
	if lastErr == nil {
		t.Fatal("expected an error from a persistently failing daemon")
	}
	if got := lastErr.Error(); got == "" {
		t.Fatal("expected a non-empty error message")
	}
}
