// Package httpapi exposes the orchestrator's control surface: workspace
// spawn/destroy/logs/pr endpoints, the inbound provider webhook, plain CRUD
// over the tracked entities, and a Prometheus scrape endpoint.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andywolf/agentium/internal/cloud/gcp"
	"github.com/andywolf/agentium/internal/metrics"
	"github.com/andywolf/agentium/internal/security"
	"github.com/andywolf/agentium/internal/store"
	"github.com/andywolf/agentium/internal/workspace"
)

// Deps wires every collaborator the control surface needs. Webhooks is
// optional: a nil value disables the /webhooks/github route entirely,
// which the orchestratord entrypoint does when no shared secret is
// configured rather than mount a handler that can never verify signatures.
type Deps struct {
	Store      *store.Store
	Runner     *workspace.Runner
	Webhooks   http.Handler
	Metrics    *metrics.Metrics
	Logger     gcp.LoggerInterface
	RateLimit  *security.RateLimiter
}

// NewRouter builds the full gorilla/mux router for the control surface.
func NewRouter(deps Deps) *mux.Router {
	s := &server{deps: deps}
	r := mux.NewRouter()

	r.Use(loggingMiddleware(deps.Logger))
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}
	if deps.RateLimit != nil {
		r.Use(deps.RateLimit.Middleware(security.IPKeyFunc))
	}

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/workspaces/spawn", s.spawnWorkspace).Methods(http.MethodPost)
	r.HandleFunc("/workspaces/{id:[0-9]+}/destroy", s.destroyWorkspace).Methods(http.MethodPost)
	r.HandleFunc("/workspaces/{id:[0-9]+}/logs", s.workspaceLogs).Methods(http.MethodGet)
	r.HandleFunc("/workspaces/{id:[0-9]+}/pr", s.workspacePR).Methods(http.MethodGet)
	r.HandleFunc("/workspaces/{id:[0-9]+}", s.getWorkspace).Methods(http.MethodGet)

	if deps.Webhooks != nil {
		r.Handle("/webhooks/github", deps.Webhooks).Methods(http.MethodPost)
	}

	r.HandleFunc("/repositories", s.listRepositories).Methods(http.MethodGet)
	r.HandleFunc("/repositories", s.createRepository).Methods(http.MethodPost)
	r.HandleFunc("/repositories/{id:[0-9]+}", s.getRepository).Methods(http.MethodGet)
	r.HandleFunc("/repositories/{id:[0-9]+}", s.deleteRepository).Methods(http.MethodDelete)

	r.HandleFunc("/issues", s.createIssue).Methods(http.MethodPost)
	r.HandleFunc("/issues/{id:[0-9]+}", s.getIssue).Methods(http.MethodGet)
	r.HandleFunc("/issues/{id:[0-9]+}", s.patchIssue).Methods(http.MethodPatch)

	r.HandleFunc("/agents", s.listAgents).Methods(http.MethodGet)
	r.HandleFunc("/agents/{id:[0-9]+}/state", s.getAgentState).Methods(http.MethodGet)

	r.HandleFunc("/contributions/{id:[0-9]+}", s.getContribution).Methods(http.MethodGet)
	r.HandleFunc("/contributions/{id:[0-9]+}", s.patchContribution).Methods(http.MethodPatch)

	r.HandleFunc("/config/{key}", s.getConfig).Methods(http.MethodGet)
	r.HandleFunc("/config/{key}", s.setConfig).Methods(http.MethodPut)

	return r
}

type server struct {
	deps Deps
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}
