// Package httptransport assembles the public HTTP surface.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	platformmetrics "piiguard/internal/platform/metrics"
	"piiguard/pkg/platform/httputil"
	"piiguard/pkg/platform/middleware/metadata"
	"piiguard/pkg/platform/middleware/request"
)

// Registrar mounts a feature's routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck probes one backing dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Dependencies are the pieces the router needs.
type Dependencies struct {
	Logger   *slog.Logger
	Metrics  *platformmetrics.Metrics
	Features []Registrar
	Health   []HealthCheck
}

const healthTimeout = 2 * time.Second

// NewRouter builds the chi router with the shared middleware chain.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	var observers []request.Observer
	if deps.Metrics != nil {
		observers = append(observers, deps.Metrics.ObserveRequest)
	}
	r.Use(request.RequestID)
	r.Use(request.Recovery(deps.Logger))
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(deps.Logger, observers...))

	r.Get("/healthz", healthHandler(deps.Health))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}
	for _, f := range deps.Features {
		f.Register(r)
	}
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				resp.Checks[c.Name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.Name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
