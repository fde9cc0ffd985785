// Package handlers implements the reporter's HTTP API.
package handlers

import (
	"net/http"
	"time"

	"github.com/admetry-labs/admetry/common/events"
	"github.com/admetry-labs/admetry/common/httputil"
	"github.com/admetry-labs/admetry/common/logging"
	"github.com/admetry-labs/admetry/internal/reporter/service"
	"github.com/admetry-labs/admetry/internal/storage"
)

// ReportHandler serves the aggregate report endpoints.
type ReportHandler struct {
	svc    *service.Service
	store  storage.Store
	logger *logging.Logger
}

func NewReportHandler(svc *service.Service, store storage.Store, logger *logging.Logger) *ReportHandler {
	return &ReportHandler{svc: svc, store: store, logger: logger}
}

// EventStats serves GET /reports/events.
// Query parameters: from, to (RFC 3339), source, funnelStage, eventType.
func (h *ReportHandler) EventStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	f, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := h.svc.EventStats(r.Context(), f)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "event stats query failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to generate report")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

// RevenueStats serves GET /reports/revenue.
// Query parameters: from, to, source, campaignId.
func (h *ReportHandler) RevenueStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	f, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := h.svc.RevenueStats(r.Context(), f)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "revenue query failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to generate report")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

// Demographics serves GET /reports/demographics.
// Query parameter: source.
func (h *ReportHandler) Demographics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	f, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.svc.Demographics(r.Context(), f)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "demographics query failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to generate report")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, report)
}

// Health serves /healthz.
func (h *ReportHandler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready serves /readyz: ready once the database answers.
func (h *ReportHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type queryError struct{ msg string }

func (e *queryError) Error() string { return e.msg }

func filterFromQuery(r *http.Request) (storage.StatsFilter, error) {
	q := r.URL.Query()
	var f storage.StatsFilter

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, &queryError{"from must be an RFC 3339 timestamp"}
		}
		f.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, &queryError{"to must be an RFC 3339 timestamp"}
		}
		f.To = &t
	}
	if v := q.Get("source"); v != "" {
		source := events.Source(v)
		if !source.Valid() {
			return f, &queryError{"unknown source"}
		}
		f.Source = source
	}
	if v := q.Get("funnelStage"); v != "" {
		stage := events.FunnelStage(v)
		if stage != events.StageTop && stage != events.StageBottom {
			return f, &queryError{"funnelStage must be top or bottom"}
		}
		f.FunnelStage = stage
	}
	f.EventType = q.Get("eventType")
	f.CampaignID = q.Get("campaignId")

	return f, nil
}
