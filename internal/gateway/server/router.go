package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/admetry-labs/admetry/common/middleware"
	"github.com/admetry-labs/admetry/internal/gateway/handlers"
)

// NewRouter constructs a ServeMux with gateway API routes registered.
func NewRouter(h *handlers.EventHandler) http.Handler {
	mux := http.NewServeMux()

	// Webhook ingress
	mux.HandleFunc("/events", h.HandleEvent)

	// Health endpoints
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
