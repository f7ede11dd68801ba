package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"candidate-service/common/httputil"
	"candidate-service/common/metrics"

	"github.com/go-chi/chi/v5"
)

const checkTimeout = 2 * time.Second

// Check is one readiness dependency.
type Check struct {
	Name  string
	Check func(ctx context.Context) error
}

type Handler struct {
	checks  []Check
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewHandler(logger *slog.Logger, m *metrics.Metrics, checks ...Check) *Handler {
	return &Handler{
		checks:  checks,
		logger:  logger,
		metrics: m,
	}
}

// Names lists the registered dependencies, for metric registration.
func (h *Handler) Names() []string {
	names := make([]string, 0, len(h.checks))
	for _, c := range h.checks {
		names = append(names, c.Name)
	}
	return names
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.Health)
	router.Get("/ready", h.Ready)
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.RespondWithJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	results := make(map[string]string, len(h.checks))
	ready := true

	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		start := time.Now()
		err := c.Check(ctx)
		cancel()

		h.metrics.Health.RecordDependencyCheck(r.Context(), c.Name, time.Since(start), err)
		if err != nil {
			ready = false
			results[c.Name] = err.Error()
			h.logger.WarnContext(r.Context(), "readiness check failed", "dependency", c.Name, "error", err)
			continue
		}
		results[c.Name] = "ok"
	}

	if !ready {
		httputil.RespondWithJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "not ready", Checks: results})
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, HealthResponse{Status: "ready", Checks: results})
}
