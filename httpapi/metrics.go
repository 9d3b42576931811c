package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) handleMetrics() http.HandlerFunc {
	if s.cfg.Metrics == nil {
		return func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusServiceUnavailable, "metrics not configured")
		}
	}
	handler := promhttp.HandlerFor(s.cfg.Metrics.Gatherer(), promhttp.HandlerOpts{})
	return handler.ServeHTTP
}
