// Package service generates aggregate reports over stored events and
// user profiles.
package service

import (
	"context"
	"time"

	"github.com/admetry-labs/admetry/common/logging"
	"github.com/admetry-labs/admetry/common/metrics"
	"github.com/admetry-labs/admetry/internal/storage"
)

// Report types used as the metric label for generation latency.
const (
	ReportEvents       = "events"
	ReportRevenue      = "revenue"
	ReportDemographics = "demographics"
)

// Service answers report queries from storage aggregates.
type Service struct {
	store  storage.Store
	logger *logging.Logger
}

func New(store storage.Store, logger *logging.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// EventStats returns event counts grouped by source, funnel stage and
// event type. An empty result is a valid report, not an error.
func (s *Service) EventStats(ctx context.Context, f storage.StatsFilter) ([]storage.EventStat, error) {
	defer s.observe(ReportEvents, time.Now())

	stats, err := s.store.EventStats(ctx, f)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = []storage.EventStat{}
	}
	return stats, nil
}

// RevenueStats returns purchase totals per source and campaign.
func (s *Service) RevenueStats(ctx context.Context, f storage.StatsFilter) ([]storage.RevenueStat, error) {
	defer s.observe(ReportRevenue, time.Now())

	stats, err := s.store.RevenueStats(ctx, f)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = []storage.RevenueStat{}
	}
	return stats, nil
}

// Demographics returns per-source user profile histograms.
func (s *Service) Demographics(ctx context.Context, f storage.StatsFilter) (*storage.DemographicsReport, error) {
	defer s.observe(ReportDemographics, time.Now())
	return s.store.Demographics(ctx, f)
}

func (s *Service) observe(reportType string, start time.Time) {
	elapsed := time.Since(start)
	metrics.ReportDuration.WithLabelValues(reportType).Observe(elapsed.Seconds())
	s.logger.Debug("report generated",
		logging.String("report_type", reportType),
		logging.Duration(elapsed.Milliseconds()))
}
