package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/edubot/tutord/internal/health"
)

type healthResponse struct {
	Status       string                  `json:"status"`
	Timestamp    time.Time               `json:"timestamp"`
	Dependencies map[string]health.Check `json:"dependencies"`
}

// healthHandler reports aggregate dependency health. Always 200: a
// degraded backend is service information, not a transport failure.
// Upstream error detail goes to the log; the payload carries only
// status and latency per dependency.
func healthHandler(registry *health.Registry, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := registry.Report(r.Context())
		for name, c := range report.Dependencies {
			if c.Status == health.StatusError {
				logger.Warn("dependency unhealthy", "dependency", name, "error", c.Error)
			}
		}
		writeJSON(w, http.StatusOK, healthResponse{
			Status:       report.Status,
			Timestamp:    time.Now().UTC(),
			Dependencies: report.Dependencies,
		})
	})
}
