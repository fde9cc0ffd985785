// Package server exposes the collector's health and metrics endpoints.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/admetry-labs/admetry/common/httputil"
	"github.com/admetry-labs/admetry/common/messaging"
	"github.com/admetry-labs/admetry/common/middleware"
	"github.com/admetry-labs/admetry/internal/storage"
)

// NewRouter constructs the collector's operational HTTP surface. Readiness
// requires a broker round-trip and a database ping, not just open
// connections.
func NewRouter(broker messaging.Client, store storage.Store) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if status := messaging.CheckClientHealth(r.Context(), broker); !status.Healthy() {
			httputil.WriteError(w, http.StatusServiceUnavailable, status.Error)
			return
		}
		if err := store.Ping(r.Context()); err != nil {
			httputil.WriteError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
