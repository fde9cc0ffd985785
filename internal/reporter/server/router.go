package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/admetry-labs/admetry/common/middleware"
	"github.com/admetry-labs/admetry/internal/reporter/handlers"
)

// NewRouter constructs a ServeMux with reporter API routes registered.
func NewRouter(h *handlers.ReportHandler) http.Handler {
	mux := http.NewServeMux()

	// Report endpoints
	mux.HandleFunc("/reports/events", h.EventStats)
	mux.HandleFunc("/reports/revenue", h.RevenueStats)
	mux.HandleFunc("/reports/demographics", h.Demographics)

	// Health endpoints
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
