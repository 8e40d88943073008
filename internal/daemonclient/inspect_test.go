package daemonclient

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

// newTestClient points a Client's transport at an httptest.Server instead of
// a real daemon unix socket, so Inspect can be exercised without a live
// Docker daemon.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	dialer := func(ctx context.Context, network, addr string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", srv.Listener.Addr().String())
	}
	return &Client{
		http:       &http.Client{Transport: &http.Transport{DialContext: dialer}},
		streamHTTP: &http.Client{Transport: &http.Transport{DialContext: dialer}},
		pingBreaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "daemonclient-ping-test",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 3
			},
		}),
	}
}

func TestInspectReportsRunningContainer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(inspectResponse{State: struct {
			Running bool `json:"Running"`
		}{Running: true}})
	})

	state, err := client.Inspect(context.Background(), "ctr-1")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if state == nil || !state.Running {
		t.Fatalf("expected a running state, got %+v", state)
	}
}

func TestInspectReturnsNilForMissingContainer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	state, err := client.Inspect(context.Background(), "ctr-gone")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if state != nil {
		t.Fatalf("expected nil state for a 404, got %+v", state)
	}
}
