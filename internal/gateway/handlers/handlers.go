// Package handlers implements the gateway's HTTP ingress.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/admetry-labs/admetry/common/events"
	"github.com/admetry-labs/admetry/common/httputil"
	"github.com/admetry-labs/admetry/common/logging"
	"github.com/admetry-labs/admetry/common/metrics"
	"github.com/admetry-labs/admetry/internal/gateway/ratelimit"
)

const serviceName = "gateway"

// EventPublisher is the slice of the publisher the handler needs.
type EventPublisher interface {
	Publish(ctx context.Context, ev *events.Event, body []byte) (string, error)
	Healthy(ctx context.Context) bool
}

// EventHandler accepts webhook events, validates them against the schema
// and commits them to the durable log before acknowledging.
type EventHandler struct {
	publisher    EventPublisher
	limiter      ratelimit.RateLimiter
	maxEventSize int64
	logger       *logging.Logger
}

func NewEventHandler(pub EventPublisher, limiter ratelimit.RateLimiter, maxEventSize int, logger *logging.Logger) *EventHandler {
	if limiter == nil {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	return &EventHandler{
		publisher:    pub,
		limiter:      limiter,
		maxEventSize: int64(maxEventSize),
		logger:       logger,
	}
}

// HandleEvent serves POST /events.
//
// A 200 response means the event passed validation and is durably stored in
// the log; everything after publish happens asynchronously. A 400 means the
// payload failed schema validation and retrying the same body is pointless.
// A 500 means validation passed but the publish failed, so the sender
// should retry.
func (h *EventHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	allowed, err := h.limiter.Allow(r.Context(), getClientIP(r))
	if err != nil {
		// Limiter failures must not take down ingestion
		h.logger.Warn("rate limiter unavailable", logging.Error(err))
	} else if !allowed {
		httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxEventSize+1))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	defer r.Body.Close()

	if int64(len(body)) > h.maxEventSize {
		metrics.EventsFailed.WithLabelValues(serviceName, "unknown", metrics.CategoryValidation).Inc()
		httputil.WriteError(w, http.StatusRequestEntityTooLarge, "event exceeds maximum size")
		return
	}

	ev, err := events.Parse(body)
	if err != nil {
		var verr *events.ValidationError
		if errors.As(err, &verr) {
			metrics.EventsFailed.WithLabelValues(serviceName, sourceLabel(ev), metrics.CategoryValidation).Inc()
			h.logger.InfoContext(r.Context(), "event rejected",
				logging.Source(sourceLabel(ev)),
				logging.Error(err))
			httputil.WriteError(w, http.StatusBadRequest, verr.Error())
			return
		}
		metrics.EventsFailed.WithLabelValues(serviceName, "unknown", metrics.CategoryValidation).Inc()
		httputil.WriteError(w, http.StatusBadRequest, "invalid event payload")
		return
	}

	correlationID, err := h.publisher.Publish(r.Context(), ev, body)
	if err != nil {
		metrics.EventsFailed.WithLabelValues(serviceName, string(ev.Source), metrics.CategoryPublish).Inc()
		h.logger.ErrorContext(r.Context(), "publish failed",
			logging.Source(string(ev.Source)),
			logging.EventID(ev.EventID),
			logging.CorrelationID(correlationID),
			logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to process event")
		return
	}

	metrics.EventsAccepted.WithLabelValues(serviceName, string(ev.Source)).Inc()
	h.logger.InfoContext(r.Context(), "event accepted",
		logging.Source(string(ev.Source)),
		logging.EventID(ev.EventID),
		logging.EventType(ev.EventType),
		logging.CorrelationID(correlationID))

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Event processed successfully",
	})
}

// Health serves /healthz: liveness only.
func (h *EventHandler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready serves /readyz: the gateway is ready once the durable log accepts
// writes.
func (h *EventHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.publisher.Healthy(r.Context()) {
		httputil.WriteError(w, http.StatusServiceUnavailable, "message broker unavailable")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func sourceLabel(ev *events.Event) string {
	if ev != nil && ev.Source != "" {
		return string(ev.Source)
	}
	return "unknown"
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
